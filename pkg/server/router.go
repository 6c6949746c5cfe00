package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/paymail/pkg/client"
	"github.com/jmerrifield20/paymail/pkg/paymail"
	"go.uber.org/zap"
)

// SenderKeyFunc returns the public key of the sender paymail handle.
type SenderKeyFunc func(ctx context.Context, senderHandle string) (string, error)

// ClientSenderKey resolves sender keys through the sender's own pki
// capability.
func ClientSenderKey(c *client.Client) SenderKeyFunc {
	return c.GetPubKey
}

// Router mounts a Handler on gin routes.
type Router struct {
	handler   Handler
	senderKey SenderKeyFunc
	prefix    string
	logger    *zap.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithPathPrefix serves the capability endpoints under prefix, e.g. "/api/v1".
// The well-known document always stays at the host root.
func WithPathPrefix(prefix string) RouterOption {
	return func(rt *Router) { rt.prefix = strings.TrimRight(prefix, "/") }
}

// WithRouterLogger sets the router's logger.
func WithRouterLogger(logger *zap.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// NewRouter creates a Router for h. senderKey resolves the keys that
// payment requests and transactions are verified against.
func NewRouter(h Handler, senderKey SenderKeyFunc, opts ...RouterOption) *Router {
	rt := &Router{
		handler:   h,
		senderKey: senderKey,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(rt)
	}
	return rt
}

const handleParam = "handle"

func (rt *Router) route(name string) string {
	return rt.prefix + "/" + name + "/:" + handleParam
}

func (rt *Router) template(name string) string {
	return rt.prefix + "/" + name + "/" + paymail.PlaceholderAlias + "@" + paymail.PlaceholderDomain
}

// Capabilities returns the document served at the well-known path.
func (rt *Router) Capabilities() *paymail.Capabilities {
	caps := &paymail.Capabilities{BSVAlias: paymail.ProtocolVersion}
	caps.SetTemplate(paymail.KeyPKI, rt.template("id"))
	caps.SetTemplate(paymail.KeyPaymentDestination, rt.template("address"))
	caps.SetTemplate(paymail.BRFCP2PPaymentDestination, rt.template("p2p-payment-destination"))
	caps.SetTemplate(paymail.BRFCP2PTransactions, rt.template("receive-transaction"))
	caps.Capabilities[paymail.BRFCSenderValidation] = json.RawMessage("true")
	if _, ok := rt.handler.(ProfileHandler); ok {
		caps.SetTemplate(paymail.BRFCPublicProfile, rt.template("public-profile"))
	}
	if _, ok := rt.handler.(PubKeyVerifier); ok {
		caps.SetTemplate(paymail.BRFCVerifyPublicKey, rt.template("verify-pubkey")+"/"+paymail.PlaceholderPubKey)
	}
	return caps
}

// Register mounts the well-known document and every capability endpoint.
func (rt *Router) Register(r gin.IRoutes) {
	r.GET(paymail.WellKnownPath, rt.serveCapabilities)
	r.GET(rt.route("id"), rt.servePKI)
	r.POST(rt.route("address"), rt.servePaymentDestination)
	r.POST(rt.route("p2p-payment-destination"), rt.serveP2PPaymentDestination)
	r.POST(rt.route("receive-transaction"), rt.serveP2PTransaction)
	if _, ok := rt.handler.(ProfileHandler); ok {
		r.GET(rt.route("public-profile"), rt.servePublicProfile)
	}
	if _, ok := rt.handler.(PubKeyVerifier); ok {
		r.GET(rt.route("verify-pubkey")+"/:pubkey", rt.serveVerifyPubKey)
	}
}

func (rt *Router) serveCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, rt.Capabilities())
}

// GET /id/:handle
func (rt *Router) servePKI(c *gin.Context) {
	addr, ok := rt.address(c)
	if !ok {
		return
	}
	res, err := rt.handler.HandlePKI(c.Request.Context(), addr)
	rt.respond(c, res, err)
}

// POST /address/:handle
func (rt *Router) servePaymentDestination(c *gin.Context) {
	addr, ok := rt.address(c)
	if !ok {
		return
	}
	var req paymail.PaymentRequest
	if !rt.bind(c, &req) {
		return
	}
	if req.SenderHandle == "" || req.IssuedAt == "" {
		rt.fail(c, fmt.Errorf("%w: senderHandle and dt are required", paymail.ErrInvalidFormat))
		return
	}

	pub, err := rt.lookupSender(c.Request.Context(), req.SenderHandle)
	if err != nil {
		rt.fail(c, err)
		return
	}
	res, err := rt.handler.HandlePaymentDestination(c.Request.Context(), addr, &req, pub)
	rt.respond(c, res, err)
}

// POST /p2p-payment-destination/:handle
func (rt *Router) serveP2PPaymentDestination(c *gin.Context) {
	addr, ok := rt.address(c)
	if !ok {
		return
	}
	var req paymail.P2PPaymentDestinationRequest
	if !rt.bind(c, &req) {
		return
	}
	res, err := rt.handler.HandleP2PPaymentDestination(c.Request.Context(), addr, &req)
	rt.respond(c, res, err)
}

// POST /receive-transaction/:handle
func (rt *Router) serveP2PTransaction(c *gin.Context) {
	addr, ok := rt.address(c)
	if !ok {
		return
	}
	var req paymail.P2PTransactionRequest
	if !rt.bind(c, &req) {
		return
	}
	if req.Hex == "" || req.Reference == "" {
		rt.fail(c, fmt.Errorf("%w: hex and reference are required", paymail.ErrInvalidFormat))
		return
	}

	pub, err := rt.transactionSenderKey(c.Request.Context(), req.Metadata)
	if err != nil {
		rt.fail(c, err)
		return
	}
	res, err := rt.handler.HandleP2PTransaction(c.Request.Context(), addr, &req, pub)
	rt.respond(c, res, err)
}

// GET /public-profile/:handle
func (rt *Router) servePublicProfile(c *gin.Context) {
	addr, ok := rt.address(c)
	if !ok {
		return
	}
	res, err := rt.handler.(ProfileHandler).HandlePublicProfile(c.Request.Context(), addr)
	rt.respond(c, res, err)
}

// GET /verify-pubkey/:handle/:pubkey
func (rt *Router) serveVerifyPubKey(c *gin.Context) {
	addr, ok := rt.address(c)
	if !ok {
		return
	}
	res, err := rt.handler.(PubKeyVerifier).HandleVerifyPubKey(c.Request.Context(), addr, c.Param("pubkey"))
	rt.respond(c, res, err)
}

// transactionSenderKey resolves the verifying key for a P2P transaction from
// the sender handle named in metadata. A pubkey carried alongside must match
// the sender's published key.
func (rt *Router) transactionSenderKey(ctx context.Context, raw json.RawMessage) (string, error) {
	var meta paymail.P2PMetadata
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return "", fmt.Errorf("%w: metadata: %v", paymail.ErrInvalidFormat, err)
		}
	}
	if meta.Sender == "" {
		return "", fmt.Errorf("%w: metadata names no sender", paymail.ErrInvalidSignature)
	}
	pub, err := rt.lookupSender(ctx, meta.Sender)
	if err != nil {
		return "", err
	}
	if meta.PubKey != "" && !strings.EqualFold(meta.PubKey, pub) {
		rt.logger.Warn("metadata pubkey does not match sender", zap.String("sender", meta.Sender))
		return "", fmt.Errorf("%w: metadata pubkey is not %s's key", paymail.ErrInvalidSignature, meta.Sender)
	}
	return pub, nil
}

func (rt *Router) lookupSender(ctx context.Context, handle string) (string, error) {
	if rt.senderKey == nil {
		return "", fmt.Errorf("%w: sender keys cannot be resolved", paymail.ErrInvalidSignature)
	}
	pub, err := rt.senderKey(ctx, handle)
	if err != nil {
		rt.logger.Warn("sender key lookup failed", zap.String("sender", handle), zap.Error(err))
		return "", fmt.Errorf("%w: resolve key for %s: %v", paymail.ErrInvalidSignature, handle, err)
	}
	return pub, nil
}

func (rt *Router) address(c *gin.Context) (paymail.Address, bool) {
	addr, err := paymail.ParseAddress(c.Param(handleParam))
	if err != nil {
		rt.fail(c, err)
		return paymail.Address{}, false
	}
	return addr, true
}

func (rt *Router) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		rt.fail(c, fmt.Errorf("%w: %v", paymail.ErrJSON, err))
		return false
	}
	return true
}

func (rt *Router) respond(c *gin.Context, res any, err error) {
	if err != nil {
		rt.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (rt *Router) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		rt.logger.Error("paymail handler failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// StatusFor maps a handler error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, paymail.ErrInvalidFormat), errors.Is(err, paymail.ErrJSON):
		return http.StatusBadRequest
	case errors.Is(err, paymail.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound), errors.Is(err, paymail.ErrCapabilityMissing):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
