package bsm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/jmerrifield20/paymail/pkg/paymail"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // HASH160 is defined over RIPEMD-160.
)

// Hash160 returns RIPEMD160(SHA256(b)).
func Hash160(b []byte) []byte {
	sum := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sum[:]) //nolint:errcheck
	return h.Sum(nil)
}

// P2PKHScript returns the hex pay-to-public-key-hash locking script for pub:
// OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG.
func P2PKHScript(pub *secp256k1.PublicKey) string {
	return "76a914" + hex.EncodeToString(Hash160(pub.SerializeCompressed())) + "88ac"
}

// TxID returns the transaction id of a hex-encoded raw transaction: the
// byte-reversed double SHA-256 of its bytes.
func TxID(rawHex string) (string, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return "", fmt.Errorf("%w: transaction hex: %v", paymail.ErrInvalidFormat, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty transaction", paymail.ErrInvalidFormat)
	}
	h := doubleSHA256(raw)
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return hex.EncodeToString(h), nil
}
