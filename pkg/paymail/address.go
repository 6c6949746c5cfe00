package paymail

import (
	"fmt"
	"strings"
)

// Address is a parsed alias@domain payment address.
type Address struct {
	Alias  string // e.g. "alice"
	Domain string // e.g. "example.com"
}

// ParseAddress splits raw on its single '@'.
//
// Zero or several '@' characters, or an empty alias or domain, yield
// ErrInvalidFormat. Neither part is case-folded: both are substituted into
// endpoint templates exactly as given.
func ParseAddress(raw string) (Address, error) {
	parts := strings.Split(raw, "@")
	if len(parts) != 2 {
		return Address{}, fmt.Errorf("%w: %q must contain exactly one '@'", ErrInvalidFormat, raw)
	}
	if parts[0] == "" {
		return Address{}, fmt.Errorf("%w: %q has an empty alias", ErrInvalidFormat, raw)
	}
	if parts[1] == "" {
		return Address{}, fmt.Errorf("%w: %q has an empty domain", ErrInvalidFormat, raw)
	}
	return Address{Alias: parts[0], Domain: parts[1]}, nil
}

// MustParseAddress is like ParseAddress but panics on error. Useful in tests.
func MustParseAddress(raw string) Address {
	a, err := ParseAddress(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the address in alias@domain form.
func (a Address) String() string {
	return a.Alias + "@" + a.Domain
}
