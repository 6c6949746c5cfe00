package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/jmerrifield20/paymail/pkg/bsm"
	"github.com/jmerrifield20/paymail/pkg/client"
	"github.com/jmerrifield20/paymail/pkg/paymail"
	"github.com/jmerrifield20/paymail/pkg/resolver"
)

// ── Stub host ───────────────────────────────────────────────────────────

type stubHost struct {
	srv           *httptest.Server
	mux           *http.ServeMux
	wellKnownHits atomic.Int32
}

// newStubHost serves a capability document containing templates and leaves
// the endpoint handlers to the test.
func newStubHost(t *testing.T, templates map[string]string) *stubHost {
	t.Helper()
	h := &stubHost{mux: http.NewServeMux()}
	h.mux.HandleFunc(paymail.WellKnownPath, func(w http.ResponseWriter, r *http.Request) {
		h.wellKnownHits.Add(1)
		caps := paymail.Capabilities{BSVAlias: paymail.ProtocolVersion}
		for k, v := range templates {
			caps.SetTemplate(k, v)
		}
		json.NewEncoder(w).Encode(caps)
	})
	h.srv = httptest.NewServer(h.mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *stubHost) resolver(t *testing.T) resolver.Static {
	t.Helper()
	return staticFor(t, h.srv, "example.com")
}

func (h *stubHost) client(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()
	base := []client.Option{
		client.WithResolver(h.resolver(t)),
		client.WithScheme("http"),
	}
	c, err := client.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func staticFor(t *testing.T, srv *httptest.Server, domain string) resolver.Static {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return resolver.Static{domain: {Host: host, Port: uint16(port)}}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func testKey(t *testing.T) *secp256k1.PrivateKey {
	t.Helper()
	key, err := bsm.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func pkiHandler(pubkey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := strings.TrimPrefix(r.URL.Path, "/id/")
		json.NewEncoder(w).Encode(paymail.PKIResponse{
			BSVAlias: paymail.ProtocolVersion,
			Handle:   handle,
			PubKey:   pubkey,
		})
	}
}

// ── Discovery ───────────────────────────────────────────────────────────

func TestGetPubKey_endToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/bsvalias", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bsvalias":"1.0","capabilities":{"pki":"/id/{alias}@{domain.tld}"}}`))
	})
	mux.HandleFunc("/id/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/id/alice@example.com" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"bsvalias":"1.0","handle":"alice@example.com","pubkey":"02abcd1234"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := client.MustNew(
		client.WithResolver(staticFor(t, srv, "example.com")),
		client.WithScheme("http"),
	)

	pub, err := c.GetPubKey(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetPubKey: %v", err)
	}
	if pub != "02abcd1234" {
		t.Errorf("pubkey = %q, want 02abcd1234", pub)
	}
}

func TestCapabilities_cachedWithinTTL(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := h.client(t, client.WithClock(clock.Now), client.WithCacheTTL(time.Hour))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Capabilities(ctx, "example.com"); err != nil {
			t.Fatalf("Capabilities: %v", err)
		}
		clock.Advance(10 * time.Minute)
	}
	if got := h.wellKnownHits.Load(); got != 1 {
		t.Errorf("well-known fetched %d times, want 1", got)
	}
	if c.CacheLen() != 1 {
		t.Errorf("CacheLen = %d, want 1", c.CacheLen())
	}
}

func TestCapabilities_refetchedAfterTTL(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := h.client(t, client.WithClock(clock.Now))
	ctx := context.Background()

	if _, err := c.Capabilities(ctx, "example.com"); err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	clock.Advance(client.DefaultCacheTTL)
	if _, err := c.Capabilities(ctx, "example.com"); err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if got := h.wellKnownHits.Load(); got != 2 {
		t.Errorf("well-known fetched %d times, want 2", got)
	}
}

func TestCapabilities_cacheDisabled(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	c := h.client(t, client.WithCacheTTL(0))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Capabilities(ctx, "example.com"); err != nil {
			t.Fatalf("Capabilities: %v", err)
		}
	}
	if got := h.wellKnownHits.Load(); got != 2 {
		t.Errorf("well-known fetched %d times, want 2", got)
	}
	if c.CacheLen() != 0 {
		t.Errorf("CacheLen = %d, want 0", c.CacheLen())
	}
}

func TestInvalidate(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	c := h.client(t)
	ctx := context.Background()

	c.Capabilities(ctx, "example.com")
	c.Invalidate("EXAMPLE.com")
	c.Capabilities(ctx, "example.com")

	if got := h.wellKnownHits.Load(); got != 2 {
		t.Errorf("well-known fetched %d times, want 2", got)
	}
}

func TestEvictExpired(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := h.client(t, client.WithClock(clock.Now), client.WithCacheTTL(time.Minute))

	if _, err := c.Capabilities(context.Background(), "example.com"); err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if n := c.EvictExpired(); n != 0 {
		t.Errorf("EvictExpired before expiry = %d, want 0", n)
	}
	clock.Advance(time.Minute)
	if n := c.EvictExpired(); n != 1 {
		t.Errorf("EvictExpired after expiry = %d, want 1", n)
	}
	if c.CacheLen() != 0 {
		t.Errorf("CacheLen = %d, want 0", c.CacheLen())
	}
}

func TestCapabilities_concurrent(t *testing.T) {
	const callers = 20

	var hits atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	mux := http.NewServeMux()
	mux.HandleFunc(paymail.WellKnownPath, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		once.Do(func() { close(entered) })
		<-release
		caps := paymail.Capabilities{BSVAlias: paymail.ProtocolVersion}
		caps.SetTemplate(paymail.KeyPKI, "/id/{alias}@{domain.tld}")
		json.NewEncoder(w).Encode(caps)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	// No cache, so only the in-flight dedup can collapse the callers.
	c, err := client.New(
		client.WithResolver(staticFor(t, srv, "example.com")),
		client.WithScheme("http"),
		client.WithCacheTTL(0),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var started atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Add(1)
			caps, err := c.Capabilities(context.Background(), "example.com")
			if err == nil && !caps.Has(paymail.KeyPKI) {
				err = errors.New("pki missing from shared document")
			}
			errs <- err
		}()
	}

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("well-known handler never reached")
	}
	for started.Load() < callers {
		time.Sleep(time.Millisecond)
	}
	// Let the stragglers reach the shared fetch before it completes.
	time.Sleep(100 * time.Millisecond)
	close(release)

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Capabilities: %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("well-known fetched %d times, want 1", got)
	}
}

func TestBaseURL(t *testing.T) {
	c := client.MustNew(client.WithResolver(resolver.Static{
		"v4.example": {Host: "paymail.v4.example", Port: 443},
		"v6.example": {Host: "::1", Port: 8443},
	}))
	ctx := context.Background()

	got, err := c.BaseURL(ctx, "v4.example")
	if err != nil || got != "https://paymail.v4.example:443" {
		t.Errorf("BaseURL(v4) = %q, %v", got, err)
	}
	got, err = c.BaseURL(ctx, "v6.example")
	if err != nil || got != "https://[::1]:8443" {
		t.Errorf("BaseURL(v6) = %q, %v", got, err)
	}
}

func TestNew_invalidScheme(t *testing.T) {
	_, err := client.New(client.WithResolver(resolver.Static{}), client.WithScheme("ftp"))
	if !errors.Is(err, paymail.ErrInvalidFormat) {
		t.Errorf("err = %v, want ErrInvalidFormat", err)
	}
}

// ── Errors ──────────────────────────────────────────────────────────────

func TestPKI_invalidAddress(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	c := h.client(t)

	for _, addr := range []string{"alice", "a@b@c", "@example.com", "alice@"} {
		if _, err := c.PKI(context.Background(), addr); !errors.Is(err, paymail.ErrInvalidFormat) {
			t.Errorf("PKI(%q) err = %v, want ErrInvalidFormat", addr, err)
		}
	}
	if got := h.wellKnownHits.Load(); got != 0 {
		t.Errorf("well-known fetched %d times, want 0", got)
	}
}

func TestPKI_dnsFailure(t *testing.T) {
	c := client.MustNew(client.WithResolver(resolver.Static{}))
	_, err := c.PKI(context.Background(), "alice@nowhere.example")
	if !errors.Is(err, paymail.ErrDNSFailure) {
		t.Errorf("err = %v, want ErrDNSFailure", err)
	}
	if !paymail.IsRetryable(err) {
		t.Error("DNS failure should be retryable")
	}
}

func TestPKI_httpError(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	h.mux.HandleFunc("/id/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unknown alias"}`, http.StatusNotFound)
	})
	c := h.client(t)

	_, err := c.PKI(context.Background(), "ghost@example.com")
	if !errors.Is(err, paymail.ErrHTTP) {
		t.Fatalf("err = %v, want ErrHTTP", err)
	}
	var he *paymail.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("err = %T, want *paymail.HTTPError", err)
	}
	if he.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", he.StatusCode)
	}
	if he.Body != `{"error":"unknown alias"}` {
		t.Errorf("Body = %q", he.Body)
	}
	if paymail.IsRetryable(err) {
		t.Error("404 should not be retryable")
	}
}

func TestPKI_badJSON(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	h.mux.HandleFunc("/id/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})
	c := h.client(t)

	if _, err := c.PKI(context.Background(), "alice@example.com"); !errors.Is(err, paymail.ErrJSON) {
		t.Errorf("err = %v, want ErrJSON", err)
	}
}

func TestCapabilities_badDocument(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/bsvalias", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bsvalias":`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := client.MustNew(client.WithResolver(staticFor(t, srv, "example.com")), client.WithScheme("http"))
	if _, err := c.Capabilities(context.Background(), "example.com"); !errors.Is(err, paymail.ErrJSON) {
		t.Errorf("err = %v, want ErrJSON", err)
	}
	if c.CacheLen() != 0 {
		t.Error("failed fetch must not be cached")
	}
}

func TestPKI_transportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	static := staticFor(t, srv, "example.com")
	srv.Close()

	c := client.MustNew(client.WithResolver(static), client.WithScheme("http"))
	_, err := c.PKI(context.Background(), "alice@example.com")
	if !errors.Is(err, paymail.ErrHTTP) {
		t.Fatalf("err = %v, want ErrHTTP", err)
	}
	var he *paymail.HTTPError
	if errors.As(err, &he) {
		t.Error("transport failure should not carry a status code")
	}
	if !paymail.IsRetryable(err) {
		t.Error("transport failure should be retryable")
	}
}

// ── Payment destination ─────────────────────────────────────────────────

func TestPaymentDestination_signed(t *testing.T) {
	key := testKey(t)
	h := newStubHost(t, map[string]string{
		paymail.KeyPaymentDestination: "/address/{alias}@{domain.tld}",
	})

	var got paymail.PaymentRequest
	h.mux.HandleFunc("/address/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ok, err := bsm.Verify(bsm.PubKeyHex(key.PubKey()), got.Signature, got.SignableMessage())
		if err != nil || !ok {
			http.Error(w, `{"error":"bad signature"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(paymail.PaymentDestinationResponse{Output: "76a914deadbeef88ac"})
	})

	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.FixedZone("CET", 3600))}
	c := h.client(t, client.WithPrivateKey(key), client.WithClock(clock.Now))

	amount := uint64(1500)
	purpose := "coffee"
	out, err := c.PaymentDestination(context.Background(), "bob@example.com", paymail.PaymentRequest{
		SenderHandle: "alice@example.com",
		Amount:       &amount,
		Purpose:      &purpose,
		IssuedAt:     "ignored",
		Signature:    "ignored",
	})
	if err != nil {
		t.Fatalf("PaymentDestination: %v", err)
	}
	if out != "76a914deadbeef88ac" {
		t.Errorf("output = %q", out)
	}
	if got.IssuedAt != "2024-03-01T11:30:45.123Z" {
		t.Errorf("dt = %q, want UTC millisecond timestamp", got.IssuedAt)
	}
	if got.SenderName != nil {
		t.Errorf("senderName = %v, want omitted", *got.SenderName)
	}
}

func TestPaymentDestination_capabilityMissing(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	var posts atomic.Int32
	h.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
	})
	c := h.client(t, client.WithPrivateKey(testKey(t)))

	_, err := c.PaymentDestination(context.Background(), "bob@example.com", paymail.PaymentRequest{SenderHandle: "alice@example.com"})
	if !errors.Is(err, paymail.ErrCapabilityMissing) {
		t.Fatalf("err = %v, want ErrCapabilityMissing", err)
	}
	if !strings.Contains(err.Error(), paymail.KeyPaymentDestination) {
		t.Errorf("error %q does not name the missing key", err)
	}
	if posts.Load() != 0 {
		t.Errorf("%d requests sent after missing capability, want 0", posts.Load())
	}
}

func TestPaymentDestination_noKey(t *testing.T) {
	h := newStubHost(t, map[string]string{
		paymail.KeyPaymentDestination: "/address/{alias}@{domain.tld}",
	})
	var posts atomic.Int32
	h.mux.HandleFunc("/address/", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
	})
	c := h.client(t)

	_, err := c.PaymentDestination(context.Background(), "bob@example.com", paymail.PaymentRequest{SenderHandle: "alice@example.com"})
	if !errors.Is(err, paymail.ErrSigning) {
		t.Errorf("err = %v, want ErrSigning", err)
	}
	if posts.Load() != 0 {
		t.Error("unsigned request must not be sent")
	}
}

// ── P2P ─────────────────────────────────────────────────────────────────

func TestP2PPaymentDestination(t *testing.T) {
	h := newStubHost(t, map[string]string{
		paymail.BRFCP2PPaymentDestination: "/p2p-payment-destination/{alias}@{domain.tld}",
	})
	h.mux.HandleFunc("/p2p-payment-destination/", func(w http.ResponseWriter, r *http.Request) {
		var req paymail.P2PPaymentDestinationRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Satoshis != 10_000 {
			t.Errorf("satoshis = %d, want 10000", req.Satoshis)
		}
		w.Write([]byte(`{"outputs":[{"script":"76a914aa88ac","satoshis":10000}],"reference":"ref-1"}`))
	})
	c := h.client(t)

	res, err := c.P2PPaymentDestination(context.Background(), "bob@example.com", 10_000)
	if err != nil {
		t.Fatalf("P2PPaymentDestination: %v", err)
	}
	if res.Reference != "ref-1" || len(res.Outputs) != 1 {
		t.Fatalf("response = %+v", res)
	}
	var out paymail.P2POutput
	if err := json.Unmarshal(res.Outputs[0], &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.Script != "76a914aa88ac" || out.Satoshis != 10_000 {
		t.Errorf("output = %+v", out)
	}
}

func TestSendP2PTransaction(t *testing.T) {
	key := testKey(t)
	h := newStubHost(t, map[string]string{
		paymail.BRFCP2PTransactions: "/receive-transaction/{alias}@{domain.tld}",
	})
	h.mux.HandleFunc("/receive-transaction/", func(w http.ResponseWriter, r *http.Request) {
		var req paymail.P2PTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg := paymail.P2PTransactionMessage(req.Hex, req.Reference)
		if ok, _ := bsm.Verify(bsm.PubKeyHex(key.PubKey()), req.Signature, msg); !ok {
			http.Error(w, `{"error":"bad signature"}`, http.StatusUnauthorized)
			return
		}
		var meta paymail.P2PMetadata
		json.Unmarshal(req.Metadata, &meta)
		if meta.Sender != "alice@example.com" {
			t.Errorf("metadata sender = %q", meta.Sender)
		}
		w.Write([]byte(`{"txid":"abc123","note":"thanks"}`))
	})
	c := h.client(t, client.WithPrivateKey(key))

	res, err := c.SendP2PTransaction(context.Background(), "bob@example.com", "0100", paymail.P2PMetadata{Sender: "alice@example.com"}, "ref-1")
	if err != nil {
		t.Fatalf("SendP2PTransaction: %v", err)
	}
	if res.TxID != "abc123" {
		t.Errorf("txid = %q", res.TxID)
	}
	if res.Note == nil || *res.Note != "thanks" {
		t.Errorf("note = %v", res.Note)
	}
}

func TestSendP2PTransaction_nilMetadata(t *testing.T) {
	h := newStubHost(t, map[string]string{
		paymail.BRFCP2PTransactions: "/receive-transaction/{alias}@{domain.tld}",
	})
	h.mux.HandleFunc("/receive-transaction/", func(w http.ResponseWriter, r *http.Request) {
		var req paymail.P2PTransactionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if string(req.Metadata) != "{}" {
			t.Errorf("metadata = %s, want {}", req.Metadata)
		}
		w.Write([]byte(`{"txid":"abc123"}`))
	})
	c := h.client(t, client.WithPrivateKey(testKey(t)))

	res, err := c.SendP2PTransaction(context.Background(), "bob@example.com", "0100", nil, "ref-1")
	if err != nil {
		t.Fatalf("SendP2PTransaction: %v", err)
	}
	if res.Note != nil {
		t.Errorf("note = %q, want nil", *res.Note)
	}
}

// ── Extensions ──────────────────────────────────────────────────────────

func TestCallExtension_methodFollowsBody(t *testing.T) {
	h := newStubHost(t, map[string]string{"custom": "/ext/{alias}@{domain.tld}"})
	var lastMethod atomic.Value
	h.mux.HandleFunc("/ext/", func(w http.ResponseWriter, r *http.Request) {
		lastMethod.Store(r.Method)
		w.Write([]byte(`{"ok":true}`))
	})
	c := h.client(t)
	ctx := context.Background()

	raw, err := c.CallExtension(ctx, "alice@example.com", "custom", nil)
	if err != nil {
		t.Fatalf("CallExtension GET: %v", err)
	}
	if lastMethod.Load() != http.MethodGet {
		t.Errorf("method = %v, want GET", lastMethod.Load())
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("response = %s", raw)
	}

	if _, err := c.CallExtension(ctx, "alice@example.com", "custom", map[string]int{"n": 1}); err != nil {
		t.Fatalf("CallExtension POST: %v", err)
	}
	if lastMethod.Load() != http.MethodPost {
		t.Errorf("method = %v, want POST", lastMethod.Load())
	}

	if _, err := c.CallExtension(ctx, "alice@example.com", "absent", nil); !errors.Is(err, paymail.ErrCapabilityMissing) {
		t.Errorf("err = %v, want ErrCapabilityMissing", err)
	}
}

func TestCallExtension_absoluteTemplate(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/elsewhere/alice" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`"absolute"`))
	}))
	defer other.Close()

	h := newStubHost(t, map[string]string{"abs": other.URL + "/elsewhere/{alias}"})
	c := h.client(t)

	raw, err := c.CallExtension(context.Background(), "alice@example.com", "abs", nil)
	if err != nil {
		t.Fatalf("CallExtension: %v", err)
	}
	if string(raw) != `"absolute"` {
		t.Errorf("response = %s", raw)
	}
}

func TestPublicProfile(t *testing.T) {
	h := newStubHost(t, map[string]string{
		paymail.BRFCPublicProfile: "/public-profile/{alias}@{domain.tld}",
	})
	h.mux.HandleFunc("/public-profile/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Alice","avatar":"https://example.com/a.png"}`))
	})
	c := h.client(t)

	p, err := c.PublicProfile(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("PublicProfile: %v", err)
	}
	if p.Name != "Alice" || p.Avatar != "https://example.com/a.png" {
		t.Errorf("profile = %+v", p)
	}
}

func TestVerifyPubKey(t *testing.T) {
	h := newStubHost(t, map[string]string{
		paymail.BRFCVerifyPublicKey: "/verify-pubkey/{alias}@{domain.tld}/{pubkey}",
	})
	h.mux.HandleFunc("/verify-pubkey/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/verify-pubkey/")
		handle, pub, _ := strings.Cut(rest, "/")
		json.NewEncoder(w).Encode(paymail.VerifyPubKeyResponse{
			Handle: handle,
			Match:  pub == "02abcd1234",
			PubKey: pub,
		})
	})
	c := h.client(t)

	res, err := c.VerifyPubKey(context.Background(), "alice@example.com", "02abcd1234")
	if err != nil {
		t.Fatalf("VerifyPubKey: %v", err)
	}
	if !res.Match || res.Handle != "alice@example.com" {
		t.Errorf("response = %+v", res)
	}

	if _, err := c.VerifyPubKey(context.Background(), "alice@example.com", ""); !errors.Is(err, paymail.ErrInvalidFormat) {
		t.Errorf("empty pubkey err = %v, want ErrInvalidFormat", err)
	}
}

func TestPubKey(t *testing.T) {
	key := testKey(t)
	c := client.MustNew(client.WithResolver(resolver.Static{}), client.WithPrivateKey(key))
	if c.PubKey() != bsm.PubKeyHex(key.PubKey()) {
		t.Errorf("PubKey = %q", c.PubKey())
	}
	if client.MustNew(client.WithResolver(resolver.Static{})).PubKey() != "" {
		t.Error("PubKey without key should be empty")
	}
}

func TestEndpoint(t *testing.T) {
	h := newStubHost(t, map[string]string{paymail.KeyPKI: "/id/{alias}@{domain.tld}"})
	h.mux.HandleFunc("/id/", pkiHandler("02abcd1234"))
	c := h.client(t)

	got, err := c.Endpoint(context.Background(), "alice@example.com", paymail.KeyPKI)
	if err != nil {
		t.Fatalf("Endpoint: %v", err)
	}
	if got != h.srv.URL+"/id/alice@example.com" {
		t.Errorf("endpoint = %q", got)
	}

	res, err := c.PKI(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("PKI: %v", err)
	}
	if res.Handle != "alice@example.com" || res.PubKey != "02abcd1234" {
		t.Errorf("pki = %+v", res)
	}
}
