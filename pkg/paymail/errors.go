package paymail

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Operations wrap one of these with fmt.Errorf("%w: ...") so callers
// can classify failures with errors.Is.
var (
	// ErrInvalidFormat is returned for a malformed address or payload field.
	ErrInvalidFormat = errors.New("invalid paymail format")

	// ErrDNSFailure is returned when no host could be resolved for a domain.
	ErrDNSFailure = errors.New("DNS resolution failed")

	// ErrHTTP is returned for transport failures and non-2xx responses.
	ErrHTTP = errors.New("HTTP request failed")

	// ErrJSON is returned when a payload cannot be encoded or decoded.
	ErrJSON = errors.New("JSON encoding failed")

	// ErrCapabilityMissing is returned when a capability document lacks the
	// requested key, or the key does not hold an endpoint template.
	ErrCapabilityMissing = errors.New("capability missing")

	// ErrInvalidSignature is returned when a signature is malformed or does not
	// verify against the sender's key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrSigning is returned when a message cannot be signed.
	ErrSigning = errors.New("signing failed")

	// ErrOther wraps lower-level failures such as undecodable key bytes.
	ErrOther = errors.New("paymail error")
)

// HTTPError describes a completed HTTP exchange that returned a non-2xx status.
// It matches ErrHTTP under errors.Is.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Is reports whether target is ErrHTTP.
func (e *HTTPError) Is(target error) bool {
	return target == ErrHTTP
}

// IsRetryable reports whether err belongs to a class a caller may sensibly
// retry with backoff: DNS failures, transport failures and 5xx responses.
// Protocol and data errors (missing capability, bad signature, bad JSON) are
// never retryable. The client itself never retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= http.StatusInternalServerError || he.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, ErrCapabilityMissing) || errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrJSON) || errors.Is(err, ErrInvalidFormat) {
		return false
	}
	return errors.Is(err, ErrDNSFailure) || errors.Is(err, ErrHTTP)
}
