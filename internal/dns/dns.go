// Package dns issues the SRV, A and AAAA queries host resolution needs,
// speaking the DNS protocol directly through github.com/miekg/dns so the
// upstream server and timeout can be chosen per client.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ErrNoServers is returned when no upstream server is configured and none can
// be read from the system resolver configuration.
var ErrNoServers = errors.New("no DNS servers configured")

const resolvConf = "/etc/resolv.conf"

// SRV is a single service record.
type SRV struct {
	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// Config holds lookup configuration.
type Config struct {
	Server  string        // "ip:port"; empty reads /etc/resolv.conf
	Timeout time.Duration // default 5s
	Net     string        // "udp" (default) or "tcp"
}

// Client answers lookups against a single upstream server.
type Client struct {
	server string
	dns    *dns.Client
}

// New creates a Client. When cfg.Server is empty the first nameserver from
// /etc/resolv.conf is used.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	server := cfg.Server
	if server == "" {
		conf, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("read DNS config: %w", err)
		}
		if len(conf.Servers) == 0 {
			return nil, ErrNoServers
		}
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	}

	return &Client{
		server: server,
		dns:    &dns.Client{Net: cfg.Net, Timeout: timeout},
	}, nil
}

// Server returns the upstream "ip:port" in use.
func (c *Client) Server() string {
	return c.server
}

// LookupSRV returns the SRV records for name in answer order.
func (c *Client) LookupSRV(ctx context.Context, name string) ([]SRV, error) {
	answer, err := c.query(ctx, name, dns.TypeSRV)
	if err != nil {
		return nil, err
	}
	var out []SRV
	for _, rr := range answer {
		if srv, ok := rr.(*dns.SRV); ok {
			out = append(out, SRV{
				Target:   srv.Target,
				Port:     srv.Port,
				Priority: srv.Priority,
				Weight:   srv.Weight,
			})
		}
	}
	return out, nil
}

// LookupA returns the IPv4 addresses for name.
func (c *Client) LookupA(ctx context.Context, name string) ([]net.IP, error) {
	answer, err := c.query(ctx, name, dns.TypeA)
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, rr := range answer {
		if a, ok := rr.(*dns.A); ok {
			out = append(out, a.A)
		}
	}
	return out, nil
}

// LookupAAAA returns the IPv6 addresses for name.
func (c *Client) LookupAAAA(ctx context.Context, name string) ([]net.IP, error) {
	answer, err := c.query(ctx, name, dns.TypeAAAA)
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, rr := range answer {
		if aaaa, ok := rr.(*dns.AAAA); ok {
			out = append(out, aaaa.AAAA)
		}
	}
	return out, nil
}

// query sends a single recursive question. NXDOMAIN is an empty answer, not an
// error; the caller decides what an empty answer means.
func (c *Client) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(strings.TrimSpace(name)), qtype)
	msg.RecursionDesired = true

	resp, _, err := c.dns.ExchangeContext(ctx, msg, c.server)
	if err != nil {
		return nil, fmt.Errorf("DNS %s lookup failed for %s: %w", dns.TypeToString[qtype], name, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		return resp.Answer, nil
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("DNS %s lookup failed for %s: rcode=%s",
			dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}
}
