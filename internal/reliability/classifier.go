package reliability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// StatusClass groups provider HTTP statuses by how a client should react.
type StatusClass int

const (
	StatusOK StatusClass = iota
	StatusRejected
	StatusThrottled
	StatusUnavailable
)

// ClassifyHTTPStatus maps an upstream status onto a StatusClass.
func ClassifyHTTPStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return StatusOK
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return StatusThrottled
	case code == http.StatusInternalServerError, code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
		return StatusUnavailable
	default:
		return StatusRejected
	}
}

// IsRetryableHTTPStatus reports whether a request that got code may be sent again.
func IsRetryableHTTPStatus(code int) bool {
	c := ClassifyHTTPStatus(code)
	return c == StatusThrottled || c == StatusUnavailable
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ExponentialBackoff returns base doubled attempt times, never above cap.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		return min(base, cap)
	}
	if attempt >= 62 {
		return cap
	}
	d := base << attempt
	if d <= 0 || d > cap {
		return cap
	}
	return d
}
