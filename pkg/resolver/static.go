package resolver

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/paymail/pkg/paymail"
)

// HostPort is a fixed resolution result.
type HostPort struct {
	Host string
	Port uint16
}

// Static resolves from a fixed table. Useful for tests and for pinning a
// domain to a known host.
type Static map[string]HostPort

// ResolveHost implements Resolver.
func (s Static) ResolveHost(_ context.Context, domain string) (string, uint16, error) {
	hp, ok := s[domain]
	if !ok {
		return "", 0, fmt.Errorf("%w: no static entry for %s", paymail.ErrDNSFailure, domain)
	}
	return hp.Host, hp.Port, nil
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, domain string) (string, uint16, error)

// ResolveHost implements Resolver.
func (f Func) ResolveHost(ctx context.Context, domain string) (string, uint16, error) {
	return f(ctx, domain)
}
