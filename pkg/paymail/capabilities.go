package paymail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ProtocolID names the well-known discovery document and the version field.
	ProtocolID = "bsvalias"

	// ProtocolVersion is the document version this package produces.
	ProtocolVersion = "1.0"

	// WellKnownPath is the discovery path served on every paymail host.
	WellKnownPath = "/.well-known/" + ProtocolID

	// SRVService is the DNS SRV label prefix queried before address records.
	SRVService = "_" + ProtocolID + "._tcp."

	// DefaultPort is used when a domain publishes no SRV record.
	DefaultPort uint16 = 443
)

// Capability keys.
const (
	KeyPKI                = "pki"
	KeyPaymentDestination = "paymentDestination"

	BRFCP2PPaymentDestination = "2a40af698840"
	BRFCP2PTransactions       = "5f1323cddf31"
	BRFCSenderValidation      = "6745385c3fc0"
	BRFCPublicProfile         = "f12f968c92d6"
	BRFCVerifyPublicKey       = "a9f510c16bde"
)

// Template placeholders substituted verbatim.
const (
	PlaceholderAlias  = "{alias}"
	PlaceholderDomain = "{domain.tld}"
	PlaceholderPubKey = "{pubkey}"
)

// Capabilities is the document served at WellKnownPath. Values are kept raw:
// most are endpoint templates (JSON strings) but extensions may publish any
// JSON value.
type Capabilities struct {
	BSVAlias     string                     `json:"bsvalias"`
	Capabilities map[string]json.RawMessage `json:"capabilities"`
}

// Has reports whether key is present, whatever its shape.
func (c *Capabilities) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Capabilities[key]
	return ok
}

// Template returns the endpoint template stored under key. A missing key or a
// non-string value yields ErrCapabilityMissing naming the key.
func (c *Capabilities) Template(key string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: %s", ErrCapabilityMissing, key)
	}
	raw, ok := c.Capabilities[key]
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: %s", ErrCapabilityMissing, key)
	}
	var tmpl string
	if err := json.Unmarshal(raw, &tmpl); err != nil {
		return "", fmt.Errorf("%w: %s", ErrCapabilityMissing, key)
	}
	return tmpl, nil
}

// Value decodes the raw value stored under key into v.
func (c *Capabilities) Value(key string, v any) error {
	if !c.Has(key) {
		return fmt.Errorf("%w: %s", ErrCapabilityMissing, key)
	}
	if err := json.Unmarshal(c.Capabilities[key], v); err != nil {
		return fmt.Errorf("%w: capability %s: %v", ErrJSON, key, err)
	}
	return nil
}

// RequiresSenderValidation reports whether the host demands signed payment
// destination requests.
func (c *Capabilities) RequiresSenderValidation() bool {
	var required bool
	if err := c.Value(BRFCSenderValidation, &required); err != nil {
		return false
	}
	return required
}

// SetTemplate stores tmpl under key, allocating the map on first use.
func (c *Capabilities) SetTemplate(key, tmpl string) {
	if c.Capabilities == nil {
		c.Capabilities = make(map[string]json.RawMessage)
	}
	b, _ := json.Marshal(tmpl)
	c.Capabilities[key] = b
}

// Expand substitutes addr into tmpl.
func Expand(tmpl string, addr Address) string {
	return strings.NewReplacer(
		PlaceholderAlias, addr.Alias,
		PlaceholderDomain, addr.Domain,
	).Replace(tmpl)
}

// ResolveEndpoint turns the template stored under key into a concrete URL.
// Path-relative templates (leading '/') are prefixed with baseURL; absolute
// templates are returned as substituted.
func ResolveEndpoint(caps *Capabilities, key string, addr Address, baseURL string) (string, error) {
	tmpl, err := caps.Template(key)
	if err != nil {
		return "", err
	}
	endpoint := Expand(tmpl, addr)
	if strings.HasPrefix(endpoint, "/") {
		return strings.TrimRight(baseURL, "/") + endpoint, nil
	}
	return endpoint, nil
}
