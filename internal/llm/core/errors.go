package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidRequest indicates missing or malformed provider request input.
	ErrInvalidRequest = errors.New("invalid llm request")
	// ErrMissingAPIKey indicates missing provider API key.
	ErrMissingAPIKey = errors.New("missing api key")
	// ErrUnknownRate indicates no rate row exists for a provider/model pair.
	ErrUnknownRate = errors.New("unknown rate")
	// ErrUnsupportedCapability indicates a provider cannot serve the request input kind.
	ErrUnsupportedCapability = errors.New("unsupported capability")
	// ErrEmptyReply indicates the provider answered without any text content.
	ErrEmptyReply = errors.New("empty model reply")
)

// ErrorKind splits backend failures by whether a caller may retry them.
type ErrorKind string

const (
	// Transient failures (timeouts, rate limits, 5xx) may succeed when retried.
	Transient ErrorKind = "transient"
	// Permanent failures (auth, invalid request) will fail again unchanged.
	Permanent ErrorKind = "permanent"
)

// BackendError is the only error category allowed to fail a request.
type BackendError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// NewBackendError classifies err. Errors marked retryable and deadline
// expiries are transient; everything else is permanent.
func NewBackendError(provider string, status int, err error) *BackendError {
	kind := Permanent
	if IsRetryableError(err) || errors.Is(err, context.DeadlineExceeded) {
		kind = Transient
	}
	return &BackendError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Err:        err,
	}
}

// AsBackendError returns err unchanged when it already carries a BackendError,
// otherwise classifies it for provider.
func AsBackendError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return NewBackendError(provider, 0, err)
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s backend %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s backend %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err carries a transient BackendError.
func IsTransient(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == Transient
}

// IsPermanent reports whether err carries a permanent BackendError.
func IsPermanent(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == Permanent
}

// IsRetryableStatus reports whether an HTTP status from a provider is worth retrying.
func IsRetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return status >= http.StatusInternalServerError
}
