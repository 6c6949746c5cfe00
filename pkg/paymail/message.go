package paymail

import (
	"strconv"
	"strings"
)

// MessageDelimiter separates canonical message fields.
const MessageDelimiter = "|"

// CanonicalMessage joins fields with MessageDelimiter. Field order is part of
// the wire contract.
func CanonicalMessage(fields ...string) string {
	return strings.Join(fields, MessageDelimiter)
}

// SignableMessage returns senderHandle|dt|amount|purpose, with a missing
// amount rendered as 0 and a missing purpose as the empty string.
func (r *PaymentRequest) SignableMessage() string {
	var amount uint64
	if r.Amount != nil {
		amount = *r.Amount
	}
	var purpose string
	if r.Purpose != nil {
		purpose = *r.Purpose
	}
	return CanonicalMessage(r.SenderHandle, r.IssuedAt, strconv.FormatUint(amount, 10), purpose)
}

// SignableMessage returns hex|reference.
func (r *P2PTransactionRequest) SignableMessage() string {
	return P2PTransactionMessage(r.Hex, r.Reference)
}

// P2PTransactionMessage returns hex|reference.
func P2PTransactionMessage(hex, reference string) string {
	return CanonicalMessage(hex, reference)
}
