package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/playlistbot/internal/shared"
)

// APIError wraps one of the shared failure classes with the HTTP status and the
// message Spotify returned. Use errors.Is(err, shared.ErrNotFound) to check the class.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("spotify: %v: %s", e.Err, e.Message)
	}
	return fmt.Sprintf("spotify: HTTP %d: %v: %s", e.StatusCode, e.Err, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a failure class.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return shared.ErrNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return shared.ErrAuthFailure
	case code == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case code == http.StatusRequestTimeout, code >= http.StatusInternalServerError:
		return shared.ErrTransient
	default:
		return shared.ErrInvalidInput
	}
}

// shouldRetry reports whether a failed request is worth another attempt.
//
// Writes are only retried when Spotify rejected them before processing (429), since a
// transient failure on a POST may already have appended the items.
func shouldRetry(method string, err error) bool {
	if errors.Is(err, shared.ErrRateLimited) {
		return true
	}
	return method == http.MethodGet && errors.Is(err, shared.ErrTransient)
}
