package bsm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/jmerrifield20/paymail/pkg/paymail"
	"github.com/mr-tron/base58"
)

const (
	wifVersion        = 0x80
	wifCompressedFlag = 0x01
	checksumLen       = 4
)

// GenerateKey returns a fresh random private key.
func GenerateKey() (*secp256k1.PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: generate key: %v", paymail.ErrOther, err)
	}
	return key, nil
}

// ParsePrivateKey accepts a 64-character hex scalar or a mainnet WIF string.
func ParsePrivateKey(s string) (*secp256k1.PrivateKey, error) {
	if len(s) == 2*secp256k1.PrivKeyBytesLen {
		if b, err := hex.DecodeString(s); err == nil {
			return privKeyFromScalar(b)
		}
	}
	return DecodeWIF(s)
}

// DecodeWIF decodes a base58check Wallet Import Format key.
func DecodeWIF(wif string) (*secp256k1.PrivateKey, error) {
	raw, err := base58.Decode(wif)
	if err != nil {
		return nil, fmt.Errorf("%w: decode WIF: %v", paymail.ErrOther, err)
	}
	// version || key || [compressed flag] || checksum
	switch len(raw) {
	case 1 + secp256k1.PrivKeyBytesLen + checksumLen:
	case 1 + secp256k1.PrivKeyBytesLen + 1 + checksumLen:
		if raw[1+secp256k1.PrivKeyBytesLen] != wifCompressedFlag {
			return nil, fmt.Errorf("%w: WIF compression flag %#x", paymail.ErrOther, raw[1+secp256k1.PrivKeyBytesLen])
		}
	default:
		return nil, fmt.Errorf("%w: WIF payload length %d", paymail.ErrOther, len(raw))
	}
	if raw[0] != wifVersion {
		return nil, fmt.Errorf("%w: WIF version %#x", paymail.ErrOther, raw[0])
	}
	body, sum := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	if !bytes.Equal(doubleSHA256(body)[:checksumLen], sum) {
		return nil, fmt.Errorf("%w: WIF checksum mismatch", paymail.ErrOther)
	}
	return privKeyFromScalar(body[1 : 1+secp256k1.PrivKeyBytesLen])
}

// EncodeWIF encodes key as a compressed mainnet WIF string.
func EncodeWIF(key *secp256k1.PrivateKey) string {
	body := make([]byte, 0, 1+secp256k1.PrivKeyBytesLen+1+checksumLen)
	body = append(body, wifVersion)
	body = append(body, key.Serialize()...)
	body = append(body, wifCompressedFlag)
	body = append(body, doubleSHA256(body)[:checksumLen]...)
	return base58.Encode(body)
}

func privKeyFromScalar(b []byte) (*secp256k1.PrivateKey, error) {
	if len(b) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: private key length %d", paymail.ErrOther, len(b))
	}
	var k secp256k1.ModNScalar
	if overflow := k.SetByteSlice(b); overflow || k.IsZero() {
		return nil, fmt.Errorf("%w: private key out of range", paymail.ErrOther)
	}
	return secp256k1.NewPrivateKey(&k), nil
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}
