package mockprovider

import (
	"context"
	"sync"
	"time"

	"wagtailgen/internal/llm/core"
)

// Provider returns a scripted reply or error for deterministic tests.
type Provider struct {
	Reply core.Reply
	Err   error
	Delay time.Duration
	// Hook, when set, runs on every request before the scripted outcome.
	Hook func(req *core.Request)

	mu       sync.Mutex
	requests []core.Request
}

// Complete records req and returns the scripted outcome, honoring cancellation during Delay.
func (m *Provider) Complete(ctx context.Context, req *core.Request) (*core.Reply, error) {
	m.mu.Lock()
	if req != nil {
		m.requests = append(m.requests, *req)
	}
	m.mu.Unlock()

	if m.Hook != nil {
		m.Hook(req)
	}

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if m.Err != nil {
		return nil, m.Err
	}
	reply := m.Reply
	return &reply, nil
}

// Requests returns a copy of every request received so far.
func (m *Provider) Requests() []core.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Request(nil), m.requests...)
}
