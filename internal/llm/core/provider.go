package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider completes a single-turn request against one model vendor.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Reply, error)
}

// Capability identifies the kind of input a request carries.
type Capability string

const (
	CapabilityText  Capability = "text"
	CapabilityImage Capability = "image"
)

// Image is inline image content sent alongside the system prompt.
type Image struct {
	MediaType string
	Data      []byte
}

// RetryPolicy configures retry/backoff behavior for transient failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Request is the provider-agnostic single-turn request.
// Exactly one of Text and Image must be set.
type Request struct {
	Model       string
	System      string
	Text        string
	Image       *Image
	MaxTokens   int
	Temperature float64
}

// Capability reports which input kind the request carries.
func (r *Request) Capability() Capability {
	if r.Image != nil {
		return CapabilityImage
	}
	return CapabilityText
}

// Validate checks the request shape shared by every provider.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: request is nil", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	switch r.Capability() {
	case CapabilityImage:
		if len(r.Image.Data) == 0 {
			return fmt.Errorf("%w: image data is empty", ErrInvalidRequest)
		}
		if strings.TrimSpace(r.Image.MediaType) == "" {
			return fmt.Errorf("%w: image media type is required", ErrInvalidRequest)
		}
		if r.Text != "" {
			return fmt.Errorf("%w: image requests carry no user text", ErrInvalidRequest)
		}
	default:
		if strings.TrimSpace(r.Text) == "" {
			return fmt.Errorf("%w: text is required", ErrInvalidRequest)
		}
	}
	return nil
}
