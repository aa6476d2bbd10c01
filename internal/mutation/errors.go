package mutation

import (
	"errors"
	"net/http"

	"github.com/1a11/billard/internal/hawk"
	"github.com/1a11/billard/internal/pathutil"
	"github.com/1a11/billard/internal/store"
)

// Every rejection is classified into one of these before it reaches the
// client.
var (
	ErrAuthentication = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrValidation     = errors.New("invalid request")
	ErrBodyTooLarge   = errors.New("request body too large")
	ErrNotFound       = errors.New("not found")
	ErrIO             = errors.New("internal error")
)

// classify maps an error from any stage onto its sentinel. Unknown errors
// are treated as storage failures.
func classify(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAuthentication), errors.Is(err, hawk.ErrUnauthorized):
		return ErrAuthentication
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, ErrBodyTooLarge), errors.As(err, &tooLarge):
		return ErrBodyTooLarge
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrValidation),
		errors.Is(err, store.ErrInvalidDocument),
		errors.Is(err, store.ErrInvalidFilename),
		errors.Is(err, pathutil.ErrUnsafeName),
		errors.Is(err, pathutil.ErrOutsideRoot):
		return ErrValidation
	}
	return ErrIO
}

func statusFor(err error) int {
	switch classify(err) {
	case nil:
		return http.StatusOK
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// resultLabel is the metric label for an outcome.
func resultLabel(err error) string {
	switch classify(err) {
	case nil:
		return "ok"
	case ErrAuthentication:
		return "unauthorized"
	case ErrRateLimited:
		return "rate_limited"
	case ErrBodyTooLarge:
		return "too_large"
	case ErrNotFound:
		return "not_found"
	case ErrValidation:
		return "invalid"
	}
	return "error"
}
