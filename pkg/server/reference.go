package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/paymail/pkg/bsm"
	"github.com/jmerrifield20/paymail/pkg/paymail"
	"go.uber.org/zap"
)

// DefaultReferenceTTL is how long an issued P2P reference stays redeemable.
const DefaultReferenceTTL = 24 * time.Hour

// referenceSweepInterval bounds how often issuing a reference also drops the
// expired ones.
const referenceSweepInterval = time.Minute

type issuedReference struct {
	handle    string
	satoshis  uint64
	expiresAt time.Time
}

// ReferenceHandler is a Handler backed by an AccountStore. It never
// broadcasts: a submitted transaction is acknowledged with its computed txid
// once its signature and reference check out.
type ReferenceHandler struct {
	accounts AccountStore
	logger   *zap.Logger
	now      func() time.Time
	ttl      time.Duration

	mu        sync.Mutex
	refs      map[string]issuedReference
	nextSweep time.Time
}

// NewReferenceHandler creates a ReferenceHandler.
func NewReferenceHandler(accounts AccountStore, logger *zap.Logger) *ReferenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceHandler{
		accounts: accounts,
		logger:   logger,
		now:      time.Now,
		ttl:      DefaultReferenceTTL,
		refs:     make(map[string]issuedReference),
	}
}

// SetReferenceTTL overrides DefaultReferenceTTL.
func (h *ReferenceHandler) SetReferenceTTL(ttl time.Duration) { h.ttl = ttl }

// SetClock overrides the time source used for reference expiry.
func (h *ReferenceHandler) SetClock(now func() time.Time) { h.now = now }

// HandlePKI returns the account's identity key.
func (h *ReferenceHandler) HandlePKI(ctx context.Context, addr paymail.Address) (*paymail.PKIResponse, error) {
	acct, err := h.accounts.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &paymail.PKIResponse{
		BSVAlias: paymail.ProtocolVersion,
		Handle:   acct.Address.String(),
		PubKey:   bsm.PubKeyHex(acct.IdentityKey),
	}, nil
}

// HandlePaymentDestination verifies req against senderPubKey and returns a
// P2PKH script paying the account's payment key.
func (h *ReferenceHandler) HandlePaymentDestination(ctx context.Context, addr paymail.Address, req *paymail.PaymentRequest, senderPubKey string) (*paymail.PaymentDestinationResponse, error) {
	if err := VerifyPaymentRequest(req, senderPubKey); err != nil {
		return nil, err
	}
	acct, err := h.accounts.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &paymail.PaymentDestinationResponse{Output: bsm.P2PKHScript(acct.PaymentKey)}, nil
}

// HandleP2PPaymentDestination issues a fresh reference and a single output
// for the full amount.
func (h *ReferenceHandler) HandleP2PPaymentDestination(ctx context.Context, addr paymail.Address, req *paymail.P2PPaymentDestinationRequest) (*paymail.P2PPaymentDestinationResponse, error) {
	if req.Satoshis == 0 {
		return nil, fmt.Errorf("%w: satoshis must be positive", paymail.ErrInvalidFormat)
	}
	acct, err := h.accounts.Account(ctx, addr)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(paymail.P2POutput{
		Script:   bsm.P2PKHScript(acct.PaymentKey),
		Satoshis: req.Satoshis,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymail.ErrJSON, err)
	}

	ref := uuid.NewString()
	now := h.now()
	h.mu.Lock()
	if !now.Before(h.nextSweep) {
		if n := h.sweepLocked(now); n > 0 {
			h.logger.Debug("swept expired p2p references", zap.Int("count", n))
		}
		h.nextSweep = now.Add(referenceSweepInterval)
	}
	h.refs[ref] = issuedReference{
		handle:    accountKey(addr),
		satoshis:  req.Satoshis,
		expiresAt: now.Add(h.ttl),
	}
	h.mu.Unlock()

	h.logger.Info("issued p2p reference",
		zap.String("handle", addr.String()),
		zap.String("reference", ref),
		zap.Uint64("satoshis", req.Satoshis),
	)
	return &paymail.P2PPaymentDestinationResponse{
		Outputs:   []json.RawMessage{out},
		Reference: ref,
	}, nil
}

// HandleP2PTransaction verifies req against senderPubKey, redeems its
// reference and acknowledges with the transaction id. A reference can be
// redeemed once.
func (h *ReferenceHandler) HandleP2PTransaction(ctx context.Context, addr paymail.Address, req *paymail.P2PTransactionRequest, senderPubKey string) (*paymail.P2PTransactionResponse, error) {
	if err := VerifyP2PTransaction(req, senderPubKey); err != nil {
		return nil, err
	}
	txid, err := bsm.TxID(req.Hex)
	if err != nil {
		return nil, err
	}
	if _, err := h.accounts.Account(ctx, addr); err != nil {
		return nil, err
	}
	if err := h.redeem(addr, req.Reference); err != nil {
		return nil, err
	}

	h.logger.Info("received p2p transaction",
		zap.String("handle", addr.String()),
		zap.String("reference", req.Reference),
		zap.String("txid", txid),
	)
	note := "received"
	return &paymail.P2PTransactionResponse{TxID: txid, Note: &note}, nil
}

func (h *ReferenceHandler) redeem(addr paymail.Address, ref string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	issued, ok := h.refs[ref]
	if !ok || issued.handle != accountKey(addr) {
		return fmt.Errorf("%w: unknown reference %q", ErrNotFound, ref)
	}
	delete(h.refs, ref)
	if !h.now().Before(issued.expiresAt) {
		return fmt.Errorf("%w: reference %q expired", ErrNotFound, ref)
	}
	return nil
}

// EvictExpired drops every expired reference and returns how many it removed.
func (h *ReferenceHandler) EvictExpired() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sweepLocked(h.now())
}

func (h *ReferenceHandler) sweepLocked(now time.Time) int {
	n := 0
	for ref, issued := range h.refs {
		if !now.Before(issued.expiresAt) {
			delete(h.refs, ref)
			n++
		}
	}
	return n
}

// PendingReferences returns the number of issued, unredeemed references.
func (h *ReferenceHandler) PendingReferences() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.refs)
}

// HandlePublicProfile implements ProfileHandler.
func (h *ReferenceHandler) HandlePublicProfile(ctx context.Context, addr paymail.Address) (*paymail.PublicProfile, error) {
	acct, err := h.accounts.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &paymail.PublicProfile{Name: acct.Name, Avatar: acct.Avatar}, nil
}

// HandleVerifyPubKey implements PubKeyVerifier.
func (h *ReferenceHandler) HandleVerifyPubKey(ctx context.Context, addr paymail.Address, pubKey string) (*paymail.VerifyPubKeyResponse, error) {
	acct, err := h.accounts.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &paymail.VerifyPubKeyResponse{
		Handle: acct.Address.String(),
		Match:  strings.EqualFold(bsm.PubKeyHex(acct.IdentityKey), pubKey),
		PubKey: pubKey,
	}, nil
}
