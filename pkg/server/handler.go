package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/paymail/pkg/bsm"
	"github.com/jmerrifield20/paymail/pkg/paymail"
)

// ErrNotFound is returned when an address or reference is not served here.
var ErrNotFound = errors.New("paymail not found")

// Handler answers inbound paymail requests. senderPubKey is the key the
// caller resolved for the sender; implementations verify against it before
// producing a destination or acknowledging a transaction.
type Handler interface {
	HandlePKI(ctx context.Context, addr paymail.Address) (*paymail.PKIResponse, error)
	HandlePaymentDestination(ctx context.Context, addr paymail.Address, req *paymail.PaymentRequest, senderPubKey string) (*paymail.PaymentDestinationResponse, error)
	HandleP2PPaymentDestination(ctx context.Context, addr paymail.Address, req *paymail.P2PPaymentDestinationRequest) (*paymail.P2PPaymentDestinationResponse, error)
	HandleP2PTransaction(ctx context.Context, addr paymail.Address, req *paymail.P2PTransactionRequest, senderPubKey string) (*paymail.P2PTransactionResponse, error)
}

// ProfileHandler is implemented by handlers that publish a public profile.
type ProfileHandler interface {
	HandlePublicProfile(ctx context.Context, addr paymail.Address) (*paymail.PublicProfile, error)
}

// PubKeyVerifier is implemented by handlers that can confirm key ownership.
type PubKeyVerifier interface {
	HandleVerifyPubKey(ctx context.Context, addr paymail.Address, pubKey string) (*paymail.VerifyPubKeyResponse, error)
}

// VerifyPaymentRequest checks req.Signature over the canonical payment
// request message. Any failure, including a malformed key or signature, is
// reported as paymail.ErrInvalidSignature.
func VerifyPaymentRequest(req *paymail.PaymentRequest, senderPubKey string) error {
	return verify(senderPubKey, req.Signature, req.SignableMessage())
}

// VerifyP2PTransaction checks req.Signature over hex|reference.
func VerifyP2PTransaction(req *paymail.P2PTransactionRequest, senderPubKey string) error {
	return verify(senderPubKey, req.Signature, req.SignableMessage())
}

func verify(pubKey, signature, message string) error {
	ok, err := bsm.Verify(pubKey, signature, message)
	if err != nil {
		if errors.Is(err, paymail.ErrInvalidSignature) {
			return err
		}
		return fmt.Errorf("%w: %w", paymail.ErrInvalidSignature, err)
	}
	if !ok {
		return fmt.Errorf("%w: signature verification failed", paymail.ErrInvalidSignature)
	}
	return nil
}
