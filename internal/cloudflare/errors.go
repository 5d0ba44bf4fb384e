package cloudflare

import (
	"errors"
	"fmt"
)

// ErrAccountUnavailable is returned when a rewrite is attempted before
// account discovery has produced an account id.
var ErrAccountUnavailable = errors.New("account not available")

// Protocol failures: the provider answered 2xx but the body does not have
// the expected shape.
var (
	ErrInvalidJSON       = errors.New("invalid JSON response")
	ErrMissingResult     = errors.New("missing result field")
	ErrMissingOutput     = errors.New("missing output field")
	ErrMissingOutputText = errors.New("missing output_text")
	ErrNoAccounts        = errors.New("no accounts found for API key")
)

// ProviderError is a non-2xx HTTP answer from Cloudflare.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("cloudflare API error %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps connection, timeout and body read failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "cloudflare request failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or unexpected response body. Kind is one
// of the Err* sentinels above so callers can use errors.Is.
type ProtocolError struct {
	Kind error
	Body string
}

func (e *ProtocolError) Error() string {
	return e.Kind.Error()
}

func (e *ProtocolError) Unwrap() error { return e.Kind }
