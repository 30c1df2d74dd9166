package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"wagtailgen/internal/format"
	"wagtailgen/internal/imagestore"
	"wagtailgen/internal/llm"
	"wagtailgen/internal/llm/core"
	mockprovider "wagtailgen/internal/llm/providers/mock"
	"wagtailgen/internal/prompt"
)

type stubBackend struct {
	reply   core.Reply
	err     error
	calls   int
	prompts []string
}

func (s *stubBackend) InvokeText(_ context.Context, _ string, systemPrompt string) (core.Reply, error) {
	s.calls++
	s.prompts = append(s.prompts, systemPrompt)
	return s.reply, s.err
}

func (s *stubBackend) InvokeImage(_ context.Context, img *imagestore.Image, systemPrompt string) (core.Reply, error) {
	s.calls++
	s.prompts = append(s.prompts, systemPrompt)
	if img != nil {
		_ = img.Release()
	}
	return s.reply, s.err
}

func (s *stubBackend) Cost(u core.Usage) string {
	return core.FormatUSD(core.CalculateCost(u, core.RatePerMTok(3, 15)))
}

type stubFormatter struct {
	out string
	err error
}

func (f stubFormatter) Format(_ context.Context, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return code, nil
}

func newGenerator(f Formatter) *Generator {
	return New(Config{Formatter: f, Logger: zerolog.Nop()})
}

// TestGenerateEndToEndWithStubProvider runs the whole chain over a scripted provider.
func TestGenerateEndToEndWithStubProvider(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Reply: core.Reply{
		Text:  "```python\nclass X: pass\n```",
		Usage: core.Usage{InputTokens: 50, OutputTokens: 20},
	}}
	backend, err := llm.NewTextBackend(llm.BackendConfig{
		Provider: llm.ProviderAnthropic,
		Model:    "claude-3-5-sonnet-20240620",
		Client:   mp,
	})
	if err != nil {
		t.Fatalf("NewTextBackend() error = %v", err)
	}

	got, err := newGenerator(format.Noop{}).Generate(context.Background(), backend, "a page")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Code != "class X: pass" {
		t.Fatalf("Code = %q, want %q", got.Code, "class X: pass")
	}
	if got.Cost != "$0.000" {
		t.Fatalf("Cost = %q, want $0.000", got.Cost)
	}
	if !got.Formatting.OK() {
		t.Fatalf("Formatting.Degraded = %v, want nil", got.Formatting.Degraded)
	}

	reqs := mp.Requests()
	if len(reqs) != 1 || reqs[0].System != prompt.Default().Generation {
		t.Fatalf("system prompt not the generation prompt")
	}
}

func TestGenerateUsesFormatterOutput(t *testing.T) {
	t.Parallel()

	b := &stubBackend{reply: core.Reply{Text: "```python\nclass X:pass\n```"}}
	got, err := newGenerator(stubFormatter{out: "class X:\n    pass\n"}).Generate(context.Background(), b, "d")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Code != "class X:\n    pass" {
		t.Fatalf("Code = %q", got.Code)
	}
}

func TestGenerateFormatterFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	b := &stubBackend{reply: core.Reply{
		Text:  "```python\nclass X: pass\n```",
		Usage: core.Usage{InputTokens: 1_000_000},
	}}
	fmtErr := errors.New("ruff: not found")

	got, err := newGenerator(stubFormatter{err: fmtErr}).Generate(context.Background(), b, "d")
	if err != nil {
		t.Fatalf("Generate() error = %v, want nil", err)
	}
	if got.Code != "class X: pass" {
		t.Fatalf("Code = %q, want unformatted extracted code", got.Code)
	}
	if !errors.Is(got.Formatting.Degraded, fmtErr) {
		t.Fatalf("Formatting.Degraded = %v, want %v", got.Formatting.Degraded, fmtErr)
	}
	if got.Cost != "$3.000" {
		t.Fatalf("Cost = %q, want $3.000", got.Cost)
	}
}

func TestGeneratePropagatesPermanentBackendError(t *testing.T) {
	t.Parallel()

	b := &stubBackend{err: core.NewBackendError("anthropic", 401, errors.New("invalid x-api-key"))}

	_, err := newGenerator(format.Noop{}).Generate(context.Background(), b, "d")
	var be *core.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("error = %v, want *core.BackendError", err)
	}
	if be.Kind != core.Permanent || be.StatusCode != 401 {
		t.Fatalf("BackendError = %#v", be)
	}
	if b.calls != 1 {
		t.Fatalf("calls = %d, want 1", b.calls)
	}
}

func TestGenerateRejectsEmptyDescription(t *testing.T) {
	t.Parallel()

	b := &stubBackend{}
	_, err := newGenerator(nil).Generate(context.Background(), b, "  \n")
	if !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("error = %v, want ErrEmptyDescription", err)
	}
	if b.calls != 0 {
		t.Fatalf("calls = %d, want 0", b.calls)
	}
}

func TestGenerateWithoutFenceUsesWholeReply(t *testing.T) {
	t.Parallel()

	b := &stubBackend{reply: core.Reply{Text: "  class Y: pass  \n"}}
	got, err := newGenerator(nil).Generate(context.Background(), b, "d")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Code != "class Y: pass" {
		t.Fatalf("Code = %q", got.Code)
	}
}

func TestGenerateFromImageUsesImagePrompt(t *testing.T) {
	t.Parallel()

	b := &stubBackend{reply: core.Reply{Text: "```\nclass Z: pass\n```"}}
	got, err := newGenerator(nil).GenerateFromImage(context.Background(), b, nil)
	if err != nil {
		t.Fatalf("GenerateFromImage() error = %v", err)
	}
	if got.Code != "class Z: pass" {
		t.Fatalf("Code = %q", got.Code)
	}
	if len(b.prompts) != 1 || b.prompts[0] != prompt.Default().Image {
		t.Fatalf("prompt was not the image prompt")
	}
}

func TestRefineReturnsReplyUnmodified(t *testing.T) {
	t.Parallel()

	text := "Blog page with:\n```\ntitle\n```\n"
	b := &stubBackend{reply: core.Reply{Text: text, Usage: core.Usage{OutputTokens: 1_000_000}}}

	got, err := newGenerator(stubFormatter{err: errors.New("must not run")}).Refine(context.Background(), b, "blog")
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if got.Description != text {
		t.Fatalf("Description = %q, want %q", got.Description, text)
	}
	if got.Cost != "$15.000" {
		t.Fatalf("Cost = %q, want $15.000", got.Cost)
	}
	if b.prompts[0] != prompt.Default().Refinement {
		t.Fatalf("prompt was not the refinement prompt")
	}
}

func TestRefinePropagatesTransientError(t *testing.T) {
	t.Parallel()

	b := &stubBackend{err: core.NewBackendError("openai", 503, core.MarkRetryable(errors.New("overloaded")))}
	_, err := newGenerator(nil).Refine(context.Background(), b, "blog")
	if !core.IsTransient(err) {
		t.Fatalf("IsTransient(%v) = false", err)
	}
	if !strings.HasPrefix(err.Error(), "refine:") {
		t.Fatalf("error = %q, want refine prefix", err)
	}
}

func TestNewKeepsCustomPrompts(t *testing.T) {
	t.Parallel()

	g := New(Config{Prompts: prompt.Set{Generation: "G"}, Logger: zerolog.Nop()})
	b := &stubBackend{reply: core.Reply{Text: "x"}}
	if _, err := g.Generate(context.Background(), b, "d"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := g.Refine(context.Background(), b, "d"); err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if b.prompts[0] != "G" || b.prompts[1] != prompt.Default().Refinement {
		t.Fatalf("prompts = %q", b.prompts)
	}
}
