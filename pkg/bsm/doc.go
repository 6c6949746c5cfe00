// Package bsm signs and verifies paymail messages using the Bitcoin Signed
// Message convention.
//
// The digest of a message m is
//
//	sha256(sha256(varint(24) || "Bitcoin Signed Message:\n" || varint(len(m)) || m))
//
// and a signature is the 65-byte compact recoverable form, a header byte
// 31+recid (compressed public key) followed by r and s, encoded with standard
// base64. Signatures produced here interoperate with the usual wallet
// "sign message" feature.
//
//	key, _ := bsm.ParsePrivateKey(wif)
//	sig, _ := bsm.Sign(key, "bob@wallet.com|2024-01-02T03:04:05.678Z|0|")
//	ok, _ := bsm.Verify(bsm.PubKeyHex(key.PubKey()), sig, "bob@wallet.com|2024-01-02T03:04:05.678Z|0|")
package bsm
