package deere

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/agroplanner/opscenter-sync/internal/httpclient"
)

// AuthError indicates the remote API rejected our credentials or token.
// The client forces a token refresh and retries the original request once
// before surfacing this error.
type AuthError struct {
	URL string
	Err error
}

// Error returns the error message
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error
func (e *AuthError) Unwrap() error {
	return e.Err
}

// RemoteError indicates the remote API returned a non-success status that is
// not an authentication failure. It is surfaced to the caller without retry.
type RemoteError struct {
	StatusCode int
	URL        string
	Err        error
}

// Error returns the error message
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote API error (HTTP %d) for %s: %v", e.StatusCode, e.URL, e.Err)
}

// Unwrap returns the underlying error
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// classifyHTTPError maps an HTTP-level failure to the client's error taxonomy.
// Non-HTTP errors (transport failures) pass through unchanged so the retry
// layer can treat them as transient.
func classifyHTTPError(err error) error {
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}

	switch httpErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{URL: httpErr.URL, Err: httpErr}
	default:
		return &RemoteError{StatusCode: httpErr.StatusCode, URL: httpErr.URL, Err: httpErr}
	}
}
