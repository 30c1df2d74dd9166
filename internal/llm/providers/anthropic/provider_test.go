package anthropicprovider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"wagtailgen/internal/llm/core"
)

const okMessage = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-5-sonnet-20240620",
  "content": [{"type": "text", "text": "` + "```python\\nclass X: pass\\n```" + `"}],
  "stop_reason": "end_turn",
  "stop_sequence": null,
  "usage": {"input_tokens": 50, "output_tokens": 20}
}`

// captureServer answers every request with status/body and records the last request body.
func captureServer(t *testing.T, status int, body string, calls *atomic.Int32, last *atomic.Value) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if last != nil {
			raw, _ := io.ReadAll(r.Body)
			last.Store(raw)
		}
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func decodeBody(t *testing.T, last *atomic.Value) map[string]any {
	t.Helper()
	raw, _ := last.Load().([]byte)
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode request body: %v (%s)", err, raw)
	}
	return body
}

func TestCompleteTextRequest(t *testing.T) {
	t.Parallel()

	var last atomic.Value
	server := captureServer(t, http.StatusOK, okMessage, nil, &last)
	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	reply, err := p.Complete(context.Background(), &core.Request{
		Model:  "claude-3-5-sonnet-20240620",
		System: "generate wagtail models",
		Text:   "A page with a title and a body",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply.Text != "```python\nclass X: pass\n```" {
		t.Fatalf("Text = %q", reply.Text)
	}
	if reply.Usage.InputTokens != 50 || reply.Usage.OutputTokens != 20 {
		t.Fatalf("Usage = %#v, want 50/20", reply.Usage)
	}
	if reply.StopReason != core.StopReasonStop {
		t.Fatalf("StopReason = %q, want stop", reply.StopReason)
	}
	if reply.Model != "claude-3-5-sonnet-20240620" {
		t.Fatalf("Model = %q", reply.Model)
	}

	body := decodeBody(t, &last)
	temp, ok := body["temperature"]
	if !ok || temp.(float64) != 0 {
		t.Fatalf("temperature = %v (present=%v), want explicit 0", temp, ok)
	}
	if got := body["max_tokens"].(float64); got != defaultMaxTokens {
		t.Fatalf("max_tokens = %v, want %d", got, defaultMaxTokens)
	}
	system := body["system"].([]any)
	if len(system) != 1 || system[0].(map[string]any)["text"] != "generate wagtail models" {
		t.Fatalf("system = %#v", system)
	}
	messages := body["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}
	msg := messages[0].(map[string]any)
	if msg["role"] != "user" {
		t.Fatalf("role = %v, want user", msg["role"])
	}
	content := msg["content"].([]any)
	block := content[0].(map[string]any)
	if block["type"] != "text" || block["text"] != "A page with a title and a body" {
		t.Fatalf("content block = %#v", block)
	}
}

func TestCompleteImageRequest(t *testing.T) {
	t.Parallel()

	var last atomic.Value
	server := captureServer(t, http.StatusOK, okMessage, nil, &last)
	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	data := []byte{0x89, 'P', 'N', 'G'}
	_, err := p.Complete(context.Background(), &core.Request{
		Model:  "claude-3-opus-20240229",
		System: "screenshot prompt",
		Image:  &core.Image{MediaType: "image/png", Data: data},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	body := decodeBody(t, &last)
	content := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("content blocks = %d, want only the image", len(content))
	}
	block := content[0].(map[string]any)
	if block["type"] != "image" {
		t.Fatalf("block type = %v, want image", block["type"])
	}
	source := block["source"].(map[string]any)
	if source["type"] != "base64" || source["media_type"] != "image/png" {
		t.Fatalf("source = %#v", source)
	}
	if source["data"] != base64.StdEncoding.EncodeToString(data) {
		t.Fatalf("data = %v, want base64 payload", source["data"])
	}
}

func TestCompleteMissingAPIKeyIsPermanent(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	_, err := p.Complete(context.Background(), &core.Request{Model: "m", Text: "x"})
	if !errors.Is(err, core.ErrMissingAPIKey) {
		t.Fatalf("Complete() error = %v, want ErrMissingAPIKey", err)
	}
	if !core.IsPermanent(err) {
		t.Fatalf("expected permanent backend error, got %v", err)
	}
}

func TestCompleteInvalidRequestIsPermanent(t *testing.T) {
	t.Parallel()

	p := New(Config{APIKey: "test-key", BaseURL: "http://127.0.0.1:1"})
	_, err := p.Complete(context.Background(), &core.Request{Model: "m"})
	if !errors.Is(err, core.ErrInvalidRequest) || !core.IsPermanent(err) {
		t.Fatalf("Complete() error = %v, want permanent ErrInvalidRequest", err)
	}
}

func TestCompleteAuthFailureIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := captureServer(t, http.StatusUnauthorized,
		`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, &calls, nil)
	p := New(Config{
		APIKey:  "bad-key",
		BaseURL: server.URL,
		Retry:   core.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})

	_, err := p.Complete(context.Background(), &core.Request{Model: "m", Text: "x"})
	var be *core.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Complete() error = %v, want *core.BackendError", err)
	}
	if be.Kind != core.Permanent || be.StatusCode != http.StatusUnauthorized {
		t.Fatalf("BackendError = %+v, want permanent 401", be)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected no retries for auth failure, got %d calls", got)
	}
}

func TestCompleteRateLimitIsTransientAndNotRetriedByDefault(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := captureServer(t, http.StatusTooManyRequests,
		`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, &calls, nil)
	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.Complete(context.Background(), &core.Request{Model: "m", Text: "x"})
	if !core.IsTransient(err) {
		t.Fatalf("Complete() error = %v, want transient", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestCompleteRetriesWhenPolicyAllows(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`)
			return
		}
		_, _ = fmt.Fprint(w, okMessage)
	}))
	defer server.Close()

	p := New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Retry:   core.RetryPolicy{MaxRetries: 2, BaseDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond},
	})

	reply, err := p.Complete(context.Background(), &core.Request{Model: "m", Text: "x"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply.Usage.OutputTokens != 20 {
		t.Fatalf("Usage = %#v", reply.Usage)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestCompleteEmptyReplyIsPermanent(t *testing.T) {
	t.Parallel()

	server := captureServer(t, http.StatusOK, `{
  "id": "msg_02", "type": "message", "role": "assistant", "model": "m",
  "content": [], "stop_reason": "end_turn", "stop_sequence": null,
  "usage": {"input_tokens": 3, "output_tokens": 0}
}`, nil, nil)
	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.Complete(context.Background(), &core.Request{Model: "m", Text: "x"})
	if !errors.Is(err, core.ErrEmptyReply) || !core.IsPermanent(err) {
		t.Fatalf("Complete() error = %v, want permanent ErrEmptyReply", err)
	}
}

func TestCompleteTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := p.Complete(context.Background(), &core.Request{Model: "m", Text: "x"})
	if !core.IsTransient(err) {
		t.Fatalf("Complete() error = %v, want transient timeout", err)
	}
}

func TestMapStopReason(t *testing.T) {
	t.Parallel()

	cases := map[string]core.StopReason{
		"end_turn":      core.StopReasonStop,
		"stop_sequence": core.StopReasonStop,
		"max_tokens":    core.StopReasonLength,
		"refusal":       core.StopReasonRefusal,
	}
	for in, want := range cases {
		if got := mapStopReason(in); got != want {
			t.Fatalf("mapStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}
