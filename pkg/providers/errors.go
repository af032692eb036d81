package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	ErrMissingCredential = errors.New("missing API key")
	ErrEmptyResponse     = errors.New("empty model response")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// TransportError means the provider could not be reached or the connection
// broke mid-response.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a failure reported by the provider itself: auth, quota,
// invalid request, server error.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// classifyTransport wraps network-level failures. Cancellation is passed
// through untouched so callers can tell it apart.
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Provider: provider, Err: err}
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &TransportError{Provider: provider, Err: err}
	}
	return err
}
