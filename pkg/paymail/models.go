package paymail

import (
	"encoding/json"
	"time"
)

// TimestampLayout formats the dt field: UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// PKIResponse is returned by the pki capability.
type PKIResponse struct {
	BSVAlias string `json:"bsvalias"`
	Handle   string `json:"handle"`
	PubKey   string `json:"pubkey"`
}

// PaymentRequest is the body of a paymentDestination call.
// IssuedAt and Signature are filled in by the client just before sending.
type PaymentRequest struct {
	SenderName   *string `json:"senderName,omitempty"`
	SenderHandle string  `json:"senderHandle"`
	IssuedAt     string  `json:"dt"`
	Amount       *uint64 `json:"amount,omitempty"`
	Purpose      *string `json:"purpose,omitempty"`
	Signature    string  `json:"signature"`
}

// PaymentDestinationResponse carries the hex-encoded output script.
type PaymentDestinationResponse struct {
	Output string `json:"output"`
}

// P2PPaymentDestinationRequest asks for outputs totalling Satoshis.
type P2PPaymentDestinationRequest struct {
	Satoshis uint64 `json:"satoshis"`
}

// P2PPaymentDestinationResponse lists outputs and the reference to quote back
// when the transaction is submitted.
type P2PPaymentDestinationResponse struct {
	Outputs   []json.RawMessage `json:"outputs"`
	Reference string            `json:"reference"`
}

// P2POutput is the usual shape of an entry in P2PPaymentDestinationResponse.Outputs.
type P2POutput struct {
	Script   string `json:"script"`
	Satoshis uint64 `json:"satoshis"`
}

// P2PTransactionRequest submits a raw transaction for a previously issued reference.
type P2PTransactionRequest struct {
	Hex       string          `json:"hex"`
	Metadata  json.RawMessage `json:"metadata"`
	Reference string          `json:"reference"`
	Signature string          `json:"signature"`
}

// P2PTransactionResponse acknowledges a submitted transaction.
type P2PTransactionResponse struct {
	TxID string  `json:"txid"`
	Note *string `json:"note,omitempty"`
}

// P2PMetadata holds the well-known metadata fields a sender may attach to a
// P2P transaction. Receivers use Sender or PubKey to find the verifying key.
type P2PMetadata struct {
	Sender    string `json:"sender,omitempty"`
	PubKey    string `json:"pubkey,omitempty"`
	Signature string `json:"signature,omitempty"`
	Note      string `json:"note,omitempty"`
}

// PublicProfile is returned by the public profile extension.
type PublicProfile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// VerifyPubKeyResponse is returned by the verify-public-key-owner extension.
type VerifyPubKeyResponse struct {
	Handle string `json:"handle"`
	Match  bool   `json:"match"`
	PubKey string `json:"pubkey"`
}
