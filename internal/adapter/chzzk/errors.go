package chzzk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/pscheid92/fazzk/internal/domain"
	"github.com/pscheid92/fazzk/internal/platform/retry"
)

// APIError is a non-success answer from the upstream, either an HTTP status
// or a non-200 code in the JSON envelope.
type APIError struct {
	Endpoint   string
	StatusCode int
	Code       int
	Message    string

	auth bool
}

func (e *APIError) Error() string {
	if e.Code != 0 && e.Code != e.StatusCode {
		return fmt.Sprintf("chzzk %s: status %d, code %d: %s", e.Endpoint, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chzzk %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap exposes domain.ErrInvalidCredentials for rejected sessions.
func (e *APIError) Unwrap() error {
	if e.auth || e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden ||
		e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return domain.ErrInvalidCredentials
	}
	return nil
}

// Throttled reports whether the upstream asked us to slow down.
func (e *APIError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == http.StatusTooManyRequests
}

// Classify maps client errors onto retry actions: rejected credentials are
// permanent, throttling and an open breaker wait longer, the rest retry.
func Classify(err error) retry.Action {
	if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrNotAuthenticated) {
		return retry.Stop
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.After
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Throttled() {
		return retry.After
	}
	return retry.Retry
}
