package paymail_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmerrifield20/paymail/pkg/paymail"
)

func decodeCaps(t *testing.T, doc string) *paymail.Capabilities {
	t.Helper()
	var caps paymail.Capabilities
	if err := json.Unmarshal([]byte(doc), &caps); err != nil {
		t.Fatalf("decode capabilities: %v", err)
	}
	return &caps
}

const sampleDoc = `{
	"bsvalias": "1.0",
	"capabilities": {
		"pki": "/id/{alias}@{domain.tld}",
		"paymentDestination": "/{alias}@{domain.tld}/payment-destination",
		"2a40af698840": "https://p2p.example.net/dest/{alias}@{domain.tld}",
		"6745385c3fc0": true,
		"broken": 42,
		"nulled": null
	}
}`

func TestResolveEndpoint_relative(t *testing.T) {
	caps := decodeCaps(t, sampleDoc)
	addr := paymail.MustParseAddress("alice@example.com")

	got, err := paymail.ResolveEndpoint(caps, paymail.KeyPaymentDestination, addr, "https://example.com:443/")
	if err != nil {
		t.Fatalf("ResolveEndpoint: %v", err)
	}
	want := "https://example.com:443/alice@example.com/payment-destination"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveEndpoint_absolute(t *testing.T) {
	caps := decodeCaps(t, sampleDoc)
	addr := paymail.MustParseAddress("alice@example.com")

	got, err := paymail.ResolveEndpoint(caps, paymail.BRFCP2PPaymentDestination, addr, "https://example.com:443")
	if err != nil {
		t.Fatalf("ResolveEndpoint: %v", err)
	}
	if got != "https://p2p.example.net/dest/alice@example.com" {
		t.Errorf("absolute template should not be re-prefixed, got %q", got)
	}
}

func TestExpand(t *testing.T) {
	got := paymail.Expand("/{alias}@{domain.tld}/payment-destination", paymail.Address{Alias: "alice", Domain: "example.com"})
	if got != "/alice@example.com/payment-destination" {
		t.Errorf("got %q", got)
	}
}

func TestTemplate_missingOrWrongShape(t *testing.T) {
	caps := decodeCaps(t, sampleDoc)

	for _, key := range []string{"absent", "broken", "nulled", paymail.BRFCSenderValidation} {
		key := key
		t.Run(key, func(t *testing.T) {
			_, err := caps.Template(key)
			if !errors.Is(err, paymail.ErrCapabilityMissing) {
				t.Fatalf("expected ErrCapabilityMissing, got %v", err)
			}
			if want := "capability missing: " + key; err.Error() != want {
				t.Errorf("error text: got %q, want %q", err.Error(), want)
			}
		})
	}
}

func TestTemplate_nilDocument(t *testing.T) {
	var caps *paymail.Capabilities
	if _, err := caps.Template(paymail.KeyPKI); !errors.Is(err, paymail.ErrCapabilityMissing) {
		t.Errorf("expected ErrCapabilityMissing, got %v", err)
	}
}

func TestRequiresSenderValidation(t *testing.T) {
	caps := decodeCaps(t, sampleDoc)
	if !caps.RequiresSenderValidation() {
		t.Error("expected sender validation to be required")
	}

	caps = decodeCaps(t, `{"bsvalias":"1.0","capabilities":{"pki":"/id"}}`)
	if caps.RequiresSenderValidation() {
		t.Error("expected sender validation not to be required")
	}
}

func TestSetTemplate(t *testing.T) {
	var caps paymail.Capabilities
	caps.SetTemplate(paymail.KeyPKI, "/id/{alias}@{domain.tld}")

	got, err := caps.Template(paymail.KeyPKI)
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if got != "/id/{alias}@{domain.tld}" {
		t.Errorf("got %q", got)
	}
}
