// Package resolver maps a paymail domain to the host and port that serve its
// capability document.
//
// Discovery order, first success wins:
//  1. SRV record _bsvalias._tcp.{domain}: first record's target and port
//  2. A record for {domain}: first address, port 443
//  3. AAAA record for {domain}: first address, port 443
//
// When all three come back empty the result is paymail.ErrDNSFailure.
package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"

	internaldns "github.com/jmerrifield20/paymail/internal/dns"
	"github.com/jmerrifield20/paymail/pkg/paymail"
	"go.uber.org/zap"
)

// Resolver resolves a domain to the host and port of its paymail service.
type Resolver interface {
	ResolveHost(ctx context.Context, domain string) (host string, port uint16, err error)
}

// Lookuper is the set of DNS primitives DNSResolver needs.
// *internaldns.Client satisfies it.
type Lookuper interface {
	LookupSRV(ctx context.Context, name string) ([]internaldns.SRV, error)
	LookupA(ctx context.Context, name string) ([]net.IP, error)
	LookupAAAA(ctx context.Context, name string) ([]net.IP, error)
}

// DNSResolver is the default Resolver.
type DNSResolver struct {
	lookup      Lookuper
	service     string
	defaultPort uint16
	logger      *zap.Logger
}

// Option configures a DNSResolver.
type Option func(*DNSResolver)

// WithDefaultPort overrides the port used with A/AAAA answers.
func WithDefaultPort(port uint16) Option {
	return func(r *DNSResolver) { r.defaultPort = port }
}

// WithService overrides the SRV label prefix (default "_bsvalias._tcp.").
func WithService(service string) Option {
	return func(r *DNSResolver) { r.service = service }
}

// NewDNSResolver creates a DNSResolver over lookup.
func NewDNSResolver(lookup Lookuper, logger *zap.Logger, opts ...Option) *DNSResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &DNSResolver{
		lookup:      lookup,
		service:     paymail.SRVService,
		defaultPort: paymail.DefaultPort,
		logger:      logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// New creates a DNSResolver that queries cfg.Server (or the system
// nameserver) with miekg/dns.
func New(cfg internaldns.Config, logger *zap.Logger, opts ...Option) (*DNSResolver, error) {
	c, err := internaldns.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymail.ErrDNSFailure, err)
	}
	return NewDNSResolver(c, logger, opts...), nil
}

// ResolveHost walks the SRV → A → AAAA ladder. A failed or empty rung falls
// through to the next; only a cancelled context stops the walk early.
func (r *DNSResolver) ResolveHost(ctx context.Context, domain string) (string, uint16, error) {
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" {
		return "", 0, fmt.Errorf("%w: empty domain", paymail.ErrDNSFailure)
	}

	// 1. SRV.
	srvName := r.service + domain
	recs, err := r.lookup.LookupSRV(ctx, srvName)
	if err != nil {
		r.logger.Debug("SRV lookup failed", zap.String("name", srvName), zap.Error(err))
	}
	if len(recs) > 0 {
		// A target of "." means the service is not offered there (RFC 2782).
		if host := strings.TrimSuffix(recs[0].Target, "."); host != "" {
			r.logger.Debug("resolved via SRV",
				zap.String("domain", domain),
				zap.String("host", host),
				zap.Uint16("port", recs[0].Port),
			)
			return host, recs[0].Port, nil
		}
		r.logger.Debug("SRV target is root, ignoring", zap.String("name", srvName))
	}
	if err := ctx.Err(); err != nil {
		return "", 0, fmt.Errorf("%w: %s: %v", paymail.ErrDNSFailure, domain, err)
	}

	// 2. A.
	v4, err := r.lookup.LookupA(ctx, domain)
	if err != nil {
		r.logger.Debug("A lookup failed", zap.String("domain", domain), zap.Error(err))
	}
	if len(v4) > 0 {
		r.logger.Debug("resolved via A", zap.String("domain", domain), zap.Stringer("ip", v4[0]))
		return v4[0].String(), r.defaultPort, nil
	}
	if err := ctx.Err(); err != nil {
		return "", 0, fmt.Errorf("%w: %s: %v", paymail.ErrDNSFailure, domain, err)
	}

	// 3. AAAA.
	v6, err := r.lookup.LookupAAAA(ctx, domain)
	if err != nil {
		r.logger.Debug("AAAA lookup failed", zap.String("domain", domain), zap.Error(err))
	}
	if len(v6) > 0 {
		r.logger.Debug("resolved via AAAA", zap.String("domain", domain), zap.Stringer("ip", v6[0]))
		return v6[0].String(), r.defaultPort, nil
	}

	return "", 0, fmt.Errorf("%w: no host found for %s", paymail.ErrDNSFailure, domain)
}
