// Package paymail holds the shared vocabulary of the bsvalias payment-address
// protocol: addresses, the capability document, request and response payloads,
// the canonical messages that get signed, and the error kinds every other
// package reports.
//
// An address looks like an email address:
//
//	addr, err := paymail.ParseAddress("alice@example.com")
//
// A capability document maps capability keys to endpoint templates. Resolving
// a key substitutes the address into the template:
//
//	endpoint, err := paymail.ResolveEndpoint(caps, paymail.KeyPKI, addr, "https://example.com:443")
//	// https://example.com:443/id/alice@example.com
package paymail
