// Package pipeline turns a description or screenshot into formatted Wagtail
// model code, and refines rough descriptions into detailed ones.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"wagtailgen/internal/extract"
	"wagtailgen/internal/imagestore"
	"wagtailgen/internal/llm/core"
	"wagtailgen/internal/prompt"
)

// ErrEmptyDescription is returned before any backend call when the description is blank.
var ErrEmptyDescription = errors.New("description is empty")

// TextInvoker is a backend that answers a text description.
type TextInvoker interface {
	InvokeText(ctx context.Context, description, systemPrompt string) (core.Reply, error)
	Cost(u core.Usage) string
}

// ImageInvoker is a backend that answers a screenshot.
type ImageInvoker interface {
	InvokeImage(ctx context.Context, img *imagestore.Image, systemPrompt string) (core.Reply, error)
	Cost(u core.Usage) string
}

// Formatter rewrites candidate code. Failures are never fatal to a generation.
type Formatter interface {
	Format(ctx context.Context, code string) (string, error)
}

// BestEffort carries a value that may be a fallback. Degraded is non-nil when
// the preferred computation failed and Value holds the fallback.
type BestEffort[T any] struct {
	Value    T
	Degraded error
}

// OK reports whether Value came from the preferred computation.
func (b BestEffort[T]) OK() bool {
	return b.Degraded == nil
}

// Generation is the outcome of one code generation.
type Generation struct {
	Code       string
	Cost       string
	Usage      core.Usage
	Formatting BestEffort[string]
}

// Refinement is the outcome of one description refinement.
type Refinement struct {
	Description string
	Cost        string
	Usage       core.Usage
}

// Config wires a Generator.
type Config struct {
	Formatter Formatter
	Prompts   prompt.Set
	Logger    zerolog.Logger
}

// Generator runs the generation and refinement pipelines. It holds no
// per-request state and is safe for concurrent use.
type Generator struct {
	formatter Formatter
	prompts   prompt.Set
	logger    zerolog.Logger
}

// New returns a Generator. A nil formatter leaves code unformatted and empty
// prompts fall back to the built-in set.
func New(cfg Config) *Generator {
	prompts := cfg.Prompts
	defaults := prompt.Default()
	if strings.TrimSpace(prompts.Generation) == "" {
		prompts.Generation = defaults.Generation
	}
	if strings.TrimSpace(prompts.Image) == "" {
		prompts.Image = defaults.Image
	}
	if strings.TrimSpace(prompts.Refinement) == "" {
		prompts.Refinement = defaults.Refinement
	}
	return &Generator{
		formatter: cfg.Formatter,
		prompts:   prompts,
		logger:    cfg.Logger,
	}
}

// Generate produces Wagtail model code for description.
func (g *Generator) Generate(ctx context.Context, b TextInvoker, description string) (Generation, error) {
	if strings.TrimSpace(description) == "" {
		return Generation{}, ErrEmptyDescription
	}
	reply, err := b.InvokeText(ctx, description, g.prompts.Generation)
	if err != nil {
		return Generation{}, fmt.Errorf("generate: %w", err)
	}
	return g.finish(ctx, reply, b.Cost(reply.Usage)), nil
}

// GenerateFromImage produces Wagtail model code for a screenshot. The backend
// releases img whatever the outcome.
func (g *Generator) GenerateFromImage(ctx context.Context, b ImageInvoker, img *imagestore.Image) (Generation, error) {
	reply, err := b.InvokeImage(ctx, img, g.prompts.Image)
	if err != nil {
		return Generation{}, fmt.Errorf("generate from image: %w", err)
	}
	return g.finish(ctx, reply, b.Cost(reply.Usage)), nil
}

// Refine expands description into a detailed model description. The reply
// text is returned as-is.
func (g *Generator) Refine(ctx context.Context, b TextInvoker, description string) (Refinement, error) {
	if strings.TrimSpace(description) == "" {
		return Refinement{}, ErrEmptyDescription
	}
	reply, err := b.InvokeText(ctx, description, g.prompts.Refinement)
	if err != nil {
		return Refinement{}, fmt.Errorf("refine: %w", err)
	}
	cost := b.Cost(reply.Usage)
	g.logger.Debug().
		Int("input_tokens", reply.Usage.InputTokens).
		Int("output_tokens", reply.Usage.OutputTokens).
		Str("cost", cost).
		Msg("refinement complete")
	return Refinement{
		Description: reply.Text,
		Cost:        cost,
		Usage:       reply.Usage,
	}, nil
}

func (g *Generator) finish(ctx context.Context, reply core.Reply, cost string) Generation {
	if !extract.HasFence(reply.Text) {
		g.logger.Debug().Msg("reply has no fenced block, using it verbatim")
	}
	code := extract.Code(reply.Text)
	formatted := g.format(ctx, code)

	g.logger.Debug().
		Int("input_tokens", reply.Usage.InputTokens).
		Int("output_tokens", reply.Usage.OutputTokens).
		Str("stop_reason", string(reply.StopReason)).
		Bool("formatted", formatted.OK()).
		Str("cost", cost).
		Msg("generation complete")

	return Generation{
		Code:       formatted.Value,
		Cost:       cost,
		Usage:      reply.Usage,
		Formatting: formatted,
	}
}

func (g *Generator) format(ctx context.Context, code string) BestEffort[string] {
	if g.formatter == nil {
		return BestEffort[string]{Value: code}
	}
	out, err := g.formatter.Format(ctx, code)
	if err != nil {
		g.logger.Warn().Err(err).Msg("formatting failed, returning unformatted code")
		return BestEffort[string]{Value: code, Degraded: err}
	}
	return BestEffort[string]{Value: strings.TrimRight(out, "\r\n")}
}
