package client

import (
	"errors"
	"time"

	"github.com/jmerrifield20/paymail/pkg/paymail"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clientRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paymail_client_requests_total",
		Help: "Total paymail client operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	clientRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paymail_client_request_duration_seconds",
		Help:    "Paymail client operation duration in seconds, including discovery.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	capabilityCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paymail_capability_cache_total",
		Help: "Capability document cache lookups by result.",
	}, []string{"result"})
)

// observe records the outcome of one operation started at start.
func observe(operation string, start time.Time, err error) {
	clientRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	clientRequestsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, paymail.ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, paymail.ErrDNSFailure):
		return "dns_failure"
	case errors.Is(err, paymail.ErrCapabilityMissing):
		return "capability_missing"
	case errors.Is(err, paymail.ErrInvalidSignature), errors.Is(err, paymail.ErrSigning):
		return "signature"
	case errors.Is(err, paymail.ErrJSON):
		return "json"
	case errors.Is(err, paymail.ErrHTTP):
		return "http"
	default:
		return "other"
	}
}
