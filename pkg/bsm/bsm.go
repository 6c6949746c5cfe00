package bsm

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/jmerrifield20/paymail/pkg/paymail"
)

// MagicPrefix is prepended to every message before hashing.
const MagicPrefix = "Bitcoin Signed Message:\n"

const (
	// SignatureLen is the decoded length of a compact recoverable signature.
	SignatureLen = 65

	headerMin = 31 // 27 + 4 (compressed key) + recid 0
	headerMax = 34 // 27 + 4 (compressed key) + recid 3
)

// MessageHash returns the double-SHA256 digest that Sign and Verify operate on.
func MessageHash(message string) []byte {
	first := sha256.Sum256(preimage(message))
	second := sha256.Sum256(first[:])
	return second[:]
}

func preimage(message string) []byte {
	buf := make([]byte, 0, len(MagicPrefix)+len(message)+2*binary.MaxVarintLen64)
	buf = appendVarInt(buf, uint64(len(MagicPrefix)))
	buf = append(buf, MagicPrefix...)
	buf = appendVarInt(buf, uint64(len(message)))
	buf = append(buf, message...)
	return buf
}

// appendVarInt appends n in Bitcoin CompactSize encoding. This is not the
// LEB128 encoding of encoding/binary.
func appendVarInt(b []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(b, byte(n))
	case n <= 0xffff:
		b = append(b, 0xfd)
		return binary.LittleEndian.AppendUint16(b, uint16(n))
	case n <= 0xffffffff:
		b = append(b, 0xfe)
		return binary.LittleEndian.AppendUint32(b, uint32(n))
	default:
		b = append(b, 0xff)
		return binary.LittleEndian.AppendUint64(b, n)
	}
}

// Sign produces a base64 compact recoverable signature of message.
func Sign(key *secp256k1.PrivateKey, message string) (string, error) {
	if key == nil || key.Key.IsZero() {
		return "", fmt.Errorf("%w: invalid private key", paymail.ErrSigning)
	}
	hash := MessageHash(message)
	if len(hash) != sha256.Size {
		return "", fmt.Errorf("%w: digest has length %d", paymail.ErrSigning, len(hash))
	}
	sig := ecdsa.SignCompact(key, hash, true)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signature is a valid signature of message by the
// holder of the hex-encoded public key.
//
// A well-formed signature that does not match returns (false, nil). Malformed
// signatures (bad base64, length other than 65, header outside [31,34], r or s
// out of range) return ErrInvalidSignature; an undecodable key returns ErrOther.
func Verify(pubKeyHex, signature, message string) (bool, error) {
	pub, err := ParsePubKey(pubKeyHex)
	if err != nil {
		return false, err
	}
	sig, err := decodeSignature(signature)
	if err != nil {
		return false, err
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[1:33]); overflow || r.IsZero() {
		return false, fmt.Errorf("%w: r out of range", paymail.ErrInvalidSignature)
	}
	if overflow := s.SetByteSlice(sig[33:65]); overflow || s.IsZero() {
		return false, fmt.Errorf("%w: s out of range", paymail.ErrInvalidSignature)
	}

	return ecdsa.NewSignature(&r, &s).Verify(MessageHash(message), pub), nil
}

// Recover returns the public key that produced signature over message.
func Recover(signature, message string) (*secp256k1.PublicKey, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return nil, err
	}
	pub, _, err := ecdsa.RecoverCompact(sig, MessageHash(message))
	if err != nil {
		return nil, fmt.Errorf("%w: recover public key: %v", paymail.ErrInvalidSignature, err)
	}
	return pub, nil
}

func decodeSignature(signature string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", paymail.ErrInvalidSignature, err)
	}
	if len(sig) != SignatureLen {
		return nil, fmt.Errorf("%w: length %d, want %d", paymail.ErrInvalidSignature, len(sig), SignatureLen)
	}
	if sig[0] < headerMin || sig[0] > headerMax {
		return nil, fmt.Errorf("%w: recovery header %d outside [%d,%d]", paymail.ErrInvalidSignature, sig[0], headerMin, headerMax)
	}
	return sig, nil
}

// ParsePubKey decodes a hex-encoded compressed or uncompressed public key.
func ParsePubKey(pubKeyHex string) (*secp256k1.PublicKey, error) {
	b, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: decode public key hex: %v", paymail.ErrOther, err)
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", paymail.ErrOther, err)
	}
	return pub, nil
}

// PubKeyHex returns the hex of the 33-byte compressed encoding of pub.
func PubKeyHex(pub *secp256k1.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}
