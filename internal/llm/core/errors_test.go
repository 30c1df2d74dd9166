package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewBackendErrorClassifies(t *testing.T) {
	t.Parallel()

	transient := NewBackendError("anthropic", http.StatusTooManyRequests, MarkRetryable(errors.New("rate limited")))
	if transient.Kind != Transient {
		t.Fatalf("Kind = %q, want %q", transient.Kind, Transient)
	}

	deadline := NewBackendError("anthropic", 0, fmt.Errorf("call: %w", context.DeadlineExceeded))
	if deadline.Kind != Transient {
		t.Fatalf("deadline Kind = %q, want %q", deadline.Kind, Transient)
	}

	permanent := NewBackendError("openai", http.StatusUnauthorized, errors.New("bad key"))
	if permanent.Kind != Permanent {
		t.Fatalf("Kind = %q, want %q", permanent.Kind, Permanent)
	}
}

func TestBackendErrorWrapping(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("generate: %w", NewBackendError("anthropic", 0, ErrMissingAPIKey))
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected wrapped sentinel to be reachable")
	}
	if !IsPermanent(err) {
		t.Fatalf("expected permanent classification through wrapping")
	}
	if IsTransient(err) {
		t.Fatalf("did not expect transient classification")
	}
	if IsPermanent(errors.New("plain")) || IsTransient(errors.New("plain")) {
		t.Fatalf("plain errors are not backend errors")
	}
}

func TestAsBackendErrorKeepsExisting(t *testing.T) {
	t.Parallel()

	orig := NewBackendError("anthropic", 503, MarkRetryable(errors.New("overloaded")))
	wrapped := fmt.Errorf("outer: %w", orig)
	if got := AsBackendError("mock", wrapped); got != wrapped {
		t.Fatalf("AsBackendError() replaced an existing backend error")
	}

	got := AsBackendError("mock", errors.New("boom"))
	var be *BackendError
	if !errors.As(got, &be) || be.Provider != "mock" || be.Kind != Permanent {
		t.Fatalf("AsBackendError() = %#v, want permanent mock error", got)
	}
	if AsBackendError("mock", nil) != nil {
		t.Fatalf("AsBackendError(nil) should be nil")
	}
}

func TestBackendErrorMessage(t *testing.T) {
	t.Parallel()

	err := NewBackendError("anthropic", 401, errors.New("invalid x-api-key"))
	want := "anthropic backend permanent error (status 401): invalid x-api-key"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{408, 409, 429, 500, 502, 503, 529} {
		if !IsRetryableStatus(status) {
			t.Fatalf("IsRetryableStatus(%d) = false, want true", status)
		}
	}
	for _, status := range []int{400, 401, 403, 404, 422} {
		if IsRetryableStatus(status) {
			t.Fatalf("IsRetryableStatus(%d) = true, want false", status)
		}
	}
}
