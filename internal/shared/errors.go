package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Input validation errors
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrEmptyPlaylist = fmt.Errorf("playlist is empty or has no accessible tracks")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrSessionCorrupted = fmt.Errorf("session corrupted")

	// Source catalog errors
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrForbidden        = fmt.Errorf("access forbidden")

	// Destination service errors
	ErrQuotaExceeded = fmt.Errorf("quota exceeded")
	ErrAPIRequest    = fmt.Errorf("API request failed")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
)

// HTTPStatus maps an error from the taxonomy to the HTTP status code the
// request layer reports for it. The mapping is populated once here so API
// clients wrap errors with the sentinels above and handlers never inspect
// error strings.
//
// Quota exhaustion maps to 429: the daily limit resets on the provider's
// schedule and only the user can retry.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyPlaylist),
		errors.Is(err, ErrPlaylistNotFound), errors.Is(err, ErrForbidden):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
