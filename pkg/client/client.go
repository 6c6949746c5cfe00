package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	internaldns "github.com/jmerrifield20/paymail/internal/dns"
	"github.com/jmerrifield20/paymail/pkg/bsm"
	"github.com/jmerrifield20/paymail/pkg/paymail"
	"github.com/jmerrifield20/paymail/pkg/resolver"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a capability document is reused before it is
// fetched again.
const DefaultCacheTTL = time.Hour

// maxResponseBytes bounds every response body the client reads.
const maxResponseBytes = 1 << 20

// Client is the paymail SDK entry point. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	resolver   resolver.Resolver
	dnsConfig  internaldns.Config
	cache      *capabilityCache
	cacheTTL   time.Duration
	fetches    singleflight.Group
	key        *secp256k1.PrivateKey
	scheme     string
	now        func() time.Time
	logger     *zap.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("%w: nil http client", paymail.ErrOther)
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// WithResolver replaces DNS host resolution, e.g. with a resolver.Static.
func WithResolver(r resolver.Resolver) Option {
	return func(c *Client) error {
		c.resolver = r
		return nil
	}
}

// WithDNS configures the nameserver used by the default resolver.
// It has no effect when WithResolver is also given.
func WithDNS(cfg internaldns.Config) Option {
	return func(c *Client) error {
		c.dnsConfig = cfg
		return nil
	}
}

// WithCacheTTL sets the capability cache TTL. A TTL of zero or less
// disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cacheTTL = ttl
		return nil
	}
}

// WithPrivateKey sets the key used to sign outgoing payment requests and
// P2P transactions.
func WithPrivateKey(key *secp256k1.PrivateKey) Option {
	return func(c *Client) error {
		c.key = key
		return nil
	}
}

// WithScheme sets the URL scheme of discovered hosts (default "https").
func WithScheme(scheme string) Option {
	return func(c *Client) error {
		switch scheme {
		case "http", "https":
			c.scheme = scheme
			return nil
		default:
			return fmt.Errorf("%w: unsupported scheme %q", paymail.ErrInvalidFormat, scheme)
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithClock overrides the time source used for cache expiry and dt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) error {
		if now != nil {
			c.now = now
		}
		return nil
	}
}

// New creates a Client.
//
//	c, err := client.New(
//	    client.WithPrivateKey(key),
//	    client.WithCacheTTL(10*time.Minute),
//	)
func New(opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cacheTTL:   DefaultCacheTTL,
		scheme:     "https",
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.resolver == nil {
		r, err := resolver.New(c.dnsConfig, c.logger)
		if err != nil {
			return nil, err
		}
		c.resolver = r
	}
	if c.cacheTTL > 0 {
		c.cache = newCapabilityCache(c.cacheTTL, c.now)
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(opts ...Option) *Client {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// PubKey returns the hex public key of the signing key, or "" when the
// client has none.
func (c *Client) PubKey() string {
	if c.key == nil {
		return ""
	}
	return bsm.PubKeyHex(c.key.PubKey())
}

// BaseURL resolves domain and returns scheme://host:port.
func (c *Client) BaseURL(ctx context.Context, domain string) (string, error) {
	host, port, err := c.resolver.ResolveHost(ctx, domain)
	if err != nil {
		return "", err
	}
	return c.scheme + "://" + net.JoinHostPort(host, strconv.Itoa(int(port))), nil
}

// Capabilities returns the capability document for domain, from cache when
// a live entry exists. The returned document is shared and must not be
// modified.
func (c *Client) Capabilities(ctx context.Context, domain string) (*paymail.Capabilities, error) {
	start := time.Now()
	entry, err := c.discover(ctx, domain)
	observe("capabilities", start, err)
	if err != nil {
		return nil, err
	}
	return entry.caps, nil
}

// discover returns the cache entry for domain, fetching it on a miss.
// Concurrent misses for one domain share a single fetch.
func (c *Client) discover(ctx context.Context, domain string) (*cacheEntry, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", paymail.ErrInvalidFormat)
	}
	if c.cache != nil {
		if e, ok := c.cache.get(domain); ok {
			capabilityCacheTotal.WithLabelValues("hit").Inc()
			c.logger.Debug("capability cache hit", zap.String("domain", domain))
			return e, nil
		}
		capabilityCacheTotal.WithLabelValues("miss").Inc()
	}

	v, err, _ := c.fetches.Do(cacheKey(domain), func() (any, error) {
		return c.fetchCapabilities(ctx, domain)
	})
	if err != nil {
		return nil, err
	}
	return v.(*cacheEntry), nil
}

func (c *Client) fetchCapabilities(ctx context.Context, domain string) (*cacheEntry, error) {
	baseURL, err := c.BaseURL(ctx, domain)
	if err != nil {
		return nil, err
	}

	var caps paymail.Capabilities
	if err := c.getJSON(ctx, baseURL+paymail.WellKnownPath, &caps); err != nil {
		return nil, err
	}

	c.logger.Info("fetched capabilities",
		zap.String("domain", domain),
		zap.String("base_url", baseURL),
		zap.Int("capabilities", len(caps.Capabilities)),
	)

	if c.cache == nil {
		return &cacheEntry{caps: &caps, baseURL: baseURL}, nil
	}
	return c.cache.set(domain, &caps, baseURL), nil
}

// Invalidate drops the cached capability document for domain.
func (c *Client) Invalidate(domain string) {
	if c.cache != nil {
		c.cache.invalidate(domain)
	}
}

// EvictExpired removes expired cache entries and returns how many were removed.
func (c *Client) EvictExpired() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.evict()
}

// CacheLen returns the number of cached capability documents.
func (c *Client) CacheLen() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.len()
}

// Endpoint resolves the concrete URL of capability key for address.
func (c *Client) Endpoint(ctx context.Context, address, key string) (string, error) {
	_, endpoint, err := c.endpoint(ctx, address, key)
	return endpoint, err
}

func (c *Client) endpoint(ctx context.Context, address, key string) (paymail.Address, string, error) {
	addr, err := paymail.ParseAddress(address)
	if err != nil {
		return paymail.Address{}, "", err
	}
	entry, err := c.discover(ctx, addr.Domain)
	if err != nil {
		return addr, "", err
	}
	endpoint, err := paymail.ResolveEndpoint(entry.caps, key, addr, entry.baseURL)
	if err != nil {
		return addr, "", err
	}
	return addr, endpoint, nil
}

// PKI fetches the identity record of address.
func (c *Client) PKI(ctx context.Context, address string) (*paymail.PKIResponse, error) {
	start := time.Now()
	res, err := c.pki(ctx, address)
	observe("pki", start, err)
	return res, err
}

func (c *Client) pki(ctx context.Context, address string) (*paymail.PKIResponse, error) {
	_, endpoint, err := c.endpoint(ctx, address, paymail.KeyPKI)
	if err != nil {
		return nil, err
	}
	var res paymail.PKIResponse
	if err := c.getJSON(ctx, endpoint, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetPubKey returns the public key of address.
func (c *Client) GetPubKey(ctx context.Context, address string) (string, error) {
	res, err := c.PKI(ctx, address)
	if err != nil {
		return "", err
	}
	return res.PubKey, nil
}

// PaymentDestination asks the host of address for an output script.
// req.IssuedAt and req.Signature are overwritten: dt is stamped with the
// current time and the canonical message is signed with the client key.
func (c *Client) PaymentDestination(ctx context.Context, address string, req paymail.PaymentRequest) (string, error) {
	start := time.Now()
	out, err := c.paymentDestination(ctx, address, req)
	observe("payment_destination", start, err)
	return out, err
}

func (c *Client) paymentDestination(ctx context.Context, address string, req paymail.PaymentRequest) (string, error) {
	_, endpoint, err := c.endpoint(ctx, address, paymail.KeyPaymentDestination)
	if err != nil {
		return "", err
	}

	req.IssuedAt = paymail.FormatTimestamp(c.now())
	sig, err := bsm.Sign(c.key, req.SignableMessage())
	if err != nil {
		return "", err
	}
	req.Signature = sig

	var res paymail.PaymentDestinationResponse
	if err := c.postJSON(ctx, endpoint, &req, &res); err != nil {
		return "", err
	}
	return res.Output, nil
}

// P2PPaymentDestination requests outputs totalling satoshis from address.
func (c *Client) P2PPaymentDestination(ctx context.Context, address string, satoshis uint64) (*paymail.P2PPaymentDestinationResponse, error) {
	start := time.Now()
	res, err := c.p2pPaymentDestination(ctx, address, satoshis)
	observe("p2p_payment_destination", start, err)
	return res, err
}

func (c *Client) p2pPaymentDestination(ctx context.Context, address string, satoshis uint64) (*paymail.P2PPaymentDestinationResponse, error) {
	_, endpoint, err := c.endpoint(ctx, address, paymail.BRFCP2PPaymentDestination)
	if err != nil {
		return nil, err
	}
	var res paymail.P2PPaymentDestinationResponse
	if err := c.postJSON(ctx, endpoint, &paymail.P2PPaymentDestinationRequest{Satoshis: satoshis}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendP2PTransaction submits rawHex for a reference previously issued by
// P2PPaymentDestination. hex|reference is signed with the client key.
// metadata is encoded as-is; nil sends an empty object.
func (c *Client) SendP2PTransaction(ctx context.Context, address, rawHex string, metadata any, reference string) (*paymail.P2PTransactionResponse, error) {
	start := time.Now()
	res, err := c.sendP2PTransaction(ctx, address, rawHex, metadata, reference)
	observe("p2p_transaction", start, err)
	return res, err
}

func (c *Client) sendP2PTransaction(ctx context.Context, address, rawHex string, metadata any, reference string) (*paymail.P2PTransactionResponse, error) {
	_, endpoint, err := c.endpoint(ctx, address, paymail.BRFCP2PTransactions)
	if err != nil {
		return nil, err
	}

	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	req := paymail.P2PTransactionRequest{
		Hex:       rawHex,
		Metadata:  meta,
		Reference: reference,
	}
	sig, err := bsm.Sign(c.key, req.SignableMessage())
	if err != nil {
		return nil, err
	}
	req.Signature = sig

	var res paymail.P2PTransactionResponse
	if err := c.postJSON(ctx, endpoint, &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func encodeMetadata(metadata any) (json.RawMessage, error) {
	switch m := metadata.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if !json.Valid(m) {
			return nil, fmt.Errorf("%w: metadata is not valid JSON", paymail.ErrJSON)
		}
		return m, nil
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("%w: encode metadata: %v", paymail.ErrJSON, err)
		}
		return b, nil
	}
}

// PublicProfile fetches the display name and avatar of address.
func (c *Client) PublicProfile(ctx context.Context, address string) (*paymail.PublicProfile, error) {
	start := time.Now()
	res, err := c.publicProfile(ctx, address)
	observe("public_profile", start, err)
	return res, err
}

func (c *Client) publicProfile(ctx context.Context, address string) (*paymail.PublicProfile, error) {
	_, endpoint, err := c.endpoint(ctx, address, paymail.BRFCPublicProfile)
	if err != nil {
		return nil, err
	}
	var res paymail.PublicProfile
	if err := c.getJSON(ctx, endpoint, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifyPubKey asks the host of address whether pubKey belongs to it.
func (c *Client) VerifyPubKey(ctx context.Context, address, pubKey string) (*paymail.VerifyPubKeyResponse, error) {
	start := time.Now()
	res, err := c.verifyPubKey(ctx, address, pubKey)
	observe("verify_pubkey", start, err)
	return res, err
}

func (c *Client) verifyPubKey(ctx context.Context, address, pubKey string) (*paymail.VerifyPubKeyResponse, error) {
	if pubKey == "" {
		return nil, fmt.Errorf("%w: empty public key", paymail.ErrInvalidFormat)
	}
	_, endpoint, err := c.endpoint(ctx, address, paymail.BRFCVerifyPublicKey)
	if err != nil {
		return nil, err
	}
	endpoint = strings.ReplaceAll(endpoint, paymail.PlaceholderPubKey, pubKey)

	var res paymail.VerifyPubKeyResponse
	if err := c.getJSON(ctx, endpoint, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CallExtension calls the endpoint published under an arbitrary capability
// key. A nil body issues a GET; anything else is JSON-encoded and POSTed.
// The response must be JSON and is returned undecoded.
func (c *Client) CallExtension(ctx context.Context, address, key string, body any) (json.RawMessage, error) {
	start := time.Now()
	res, err := c.callExtension(ctx, address, key, body)
	observe("extension", start, err)
	return res, err
}

func (c *Client) callExtension(ctx context.Context, address, key string, body any) (json.RawMessage, error) {
	_, endpoint, err := c.endpoint(ctx, address, key)
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if body != nil {
		method = http.MethodPost
	}
	raw, err := c.do(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s %s: response is not JSON", paymail.ErrJSON, method, endpoint)
	}
	return json.RawMessage(raw), nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) postJSON(ctx context.Context, url string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, url, in, out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	raw, err := c.do(ctx, method, url, in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", paymail.ErrJSON, url, err)
	}
	return nil
}

// do executes one request and returns the body of a 2xx response. Transport
// failures wrap ErrHTTP; any other status is returned as *paymail.HTTPError.
func (c *Client) do(ctx context.Context, method, url string, in any) ([]byte, error) {
	var bodyReader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%w: encode request: %v", paymail.ErrJSON, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", paymail.ErrHTTP, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("paymail request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s %s: %w", paymail.ErrHTTP, method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %w", paymail.ErrHTTP, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &paymail.HTTPError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
