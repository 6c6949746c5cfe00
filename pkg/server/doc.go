// Package server is the receiving side of the paymail protocol.
//
// Handler is the contract a hosting service implements. VerifyPaymentRequest
// and VerifyP2PTransaction hold the signature checks every implementation
// shares. ReferenceHandler is a complete in-memory implementation backed by
// an AccountStore, and Router mounts any Handler on a gin engine together
// with the /.well-known/bsvalias document describing it.
package server
