package aierr

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

type Type string

const (
	TypeTimeout            Type = "timeout"
	TypeRateLimit          Type = "rate_limit"
	TypeServiceUnavailable Type = "service_unavailable"
	TypeNetworkFailure     Type = "network_failure"
	TypeInvalidRequest     Type = "invalid_request"
	TypeQuotaExceeded      Type = "quota_exceeded"
	TypeUnknown            Type = "unknown"
)

// Classification is the single source of truth for retry eligibility. Both the
// embedding pipeline (deciding whether to enqueue a failed request at all) and
// the retry sweep (deciding whether a due record is still worth retrying)
// consult it.
type Classification struct {
	Type              Type  `json:"type"`
	Retryable         bool  `json:"retryable"`
	RetryDelaySeconds int64 `json:"retry_delay_seconds"`
	StatusCode        int   `json:"status_code,omitempty"`
}

// MaxAttempts bounds the retry chain: attempts 0..3 may retry, attempt 4 never.
const MaxAttempts = 4

// maxDelaySeconds caps exponential backoff.
const maxDelaySeconds = 8

// statusCoder is implemented by provider and store errors that carry an
// upstream HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// Classify maps a raw failure into a typed verdict. Pure, no side effects.
// Rule order matters: a timeout wins over any status code it may carry.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Type: TypeUnknown}
	}
	status := httpStatus(err)
	msg := strings.ToLower(err.Error())

	switch {
	case isTimeout(err, msg):
		return Classification{Type: TypeTimeout, Retryable: true, RetryDelaySeconds: 1, StatusCode: status}
	case status == 429:
		// Never queued: re-driving rate-limited calls amplifies the
		// throttling. The long delay is advice for callers with their
		// own backoff.
		return Classification{Type: TypeRateLimit, Retryable: false, RetryDelaySeconds: 30, StatusCode: status}
	case status == 500 || status == 503 || strings.Contains(msg, "service unavailable"):
		return Classification{Type: TypeServiceUnavailable, Retryable: true, RetryDelaySeconds: 2, StatusCode: status}
	case isNetworkFailure(err, msg):
		return Classification{Type: TypeNetworkFailure, Retryable: true, RetryDelaySeconds: 1, StatusCode: status}
	case status == 400:
		return Classification{Type: TypeInvalidRequest, Retryable: false, StatusCode: status}
	case status == 402:
		return Classification{Type: TypeQuotaExceeded, Retryable: false, StatusCode: status}
	default:
		return Classification{Type: TypeUnknown, Retryable: false, StatusCode: status}
	}
}

// FromType rebuilds a classification from a stored error type. The retry sweep
// uses it to re-check retryability of persisted records.
func FromType(t Type) Classification {
	switch t {
	case TypeTimeout:
		return Classification{Type: TypeTimeout, Retryable: true, RetryDelaySeconds: 1}
	case TypeRateLimit:
		return Classification{Type: TypeRateLimit, Retryable: false, RetryDelaySeconds: 30}
	case TypeServiceUnavailable:
		return Classification{Type: TypeServiceUnavailable, Retryable: true, RetryDelaySeconds: 2}
	case TypeNetworkFailure:
		return Classification{Type: TypeNetworkFailure, Retryable: true, RetryDelaySeconds: 1}
	case TypeInvalidRequest:
		return Classification{Type: TypeInvalidRequest, Retryable: false}
	case TypeQuotaExceeded:
		return Classification{Type: TypeQuotaExceeded, Retryable: false}
	default:
		return Classification{Type: TypeUnknown, Retryable: false}
	}
}

// ShouldRetry reports whether another attempt is allowed for this
// classification at the given attempt count.
func ShouldRetry(c Classification, attempt int) bool {
	if !c.Retryable {
		return false
	}
	return attempt >= 0 && attempt < MaxAttempts
}

// RetryDelay computes the backoff in seconds for the given attempt:
// min(base * 2^attempt, 8).
func RetryDelay(baseSeconds int64, attempt int) int64 {
	if baseSeconds <= 0 {
		baseSeconds = 1
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := baseSeconds
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelaySeconds {
			return maxDelaySeconds
		}
	}
	if delay > maxDelaySeconds {
		return maxDelaySeconds
	}
	return delay
}

func httpStatus(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

func isTimeout(err error, msg string) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded")
}

func isNetworkFailure(err error, msg string) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "broken pipe")
}
