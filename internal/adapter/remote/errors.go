package remote

import (
	"fmt"
	"net/http"

	"github.com/iho/tripledger/internal/domain"
)

// APIError is a non-200 answer of the remote ledger. It unwraps to the
// domain category named by the response code, or derived from the status.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	retryAfter bool
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote ledger: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("remote ledger: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Unwrap returns the domain category of the failure.
func (e *APIError) Unwrap() error {
	switch domain.Kind(e.Code) {
	case domain.KindValidation:
		return domain.ErrValidation
	case domain.KindNotFound:
		return domain.ErrNotFound
	case domain.KindUnauthorized:
		return domain.ErrUnauthorized
	case domain.KindConflict:
		return domain.ErrConflict
	case domain.KindDependency:
		return domain.ErrDependency
	}

	switch {
	case e.StatusCode == http.StatusBadRequest:
		return domain.ErrValidation
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case e.StatusCode == http.StatusConflict:
		return domain.ErrConflict
	default:
		return domain.ErrDependency
	}
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.retryAfter || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
