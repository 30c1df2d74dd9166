package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"wagtailgen/internal/imagestore"
	"wagtailgen/internal/llm/core"
)

// generationTemperature is fixed at zero so identical descriptions produce
// identical models.
const generationTemperature = 0

// BackendConfig binds a provider client to one model and its rate row.
type BackendConfig struct {
	// Provider names the rate-table row and labels errors ("anthropic", "openai").
	Provider  string
	Model     string
	Client    core.Provider
	Rates     core.RateTable
	MaxTokens int
	Logger    zerolog.Logger
}

type binding struct {
	provider  string
	model     string
	client    core.Provider
	rate      core.Rate
	maxTokens int
}

func bind(cfg BackendConfig) (binding, error) {
	provider := strings.TrimSpace(cfg.Provider)
	model := strings.TrimSpace(cfg.Model)
	if provider == "" {
		return binding{}, fmt.Errorf("%w: provider is required", core.ErrInvalidRequest)
	}
	if model == "" {
		return binding{}, fmt.Errorf("%w: model is required", core.ErrInvalidRequest)
	}
	if cfg.Client == nil {
		return binding{}, fmt.Errorf("%w: client is required", core.ErrInvalidRequest)
	}
	rates := cfg.Rates
	if rates == nil {
		rates = core.DefaultRates()
	}
	rate, err := rates.Lookup(provider, model)
	if err != nil {
		return binding{}, err
	}
	return binding{
		provider:  provider,
		model:     model,
		client:    cfg.Client,
		rate:      rate,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Cost prices usage with the backend's rate row.
func (b binding) Cost(u core.Usage) string {
	return core.FormatUSD(core.CalculateCost(u, b.rate))
}

// Provider returns the provider name the backend was built for.
func (b binding) Provider() string { return b.provider }

// Model returns the model the backend sends requests to.
func (b binding) Model() string { return b.model }

func (b binding) complete(ctx context.Context, req *core.Request) (core.Reply, error) {
	reply, err := b.client.Complete(ctx, req)
	if err != nil {
		return core.Reply{}, core.AsBackendError(b.provider, err)
	}
	if reply == nil {
		return core.Reply{}, core.NewBackendError(b.provider, 0, core.ErrEmptyReply)
	}
	return *reply, nil
}

// TextBackend sends a description under a fixed system prompt.
type TextBackend struct {
	binding
}

// NewTextBackend validates cfg and resolves its rate row.
func NewTextBackend(cfg BackendConfig) (*TextBackend, error) {
	b, err := bind(cfg)
	if err != nil {
		return nil, fmt.Errorf("text backend: %w", err)
	}
	return &TextBackend{binding: b}, nil
}

// InvokeText runs one deterministic single-turn completion.
func (b *TextBackend) InvokeText(ctx context.Context, description, systemPrompt string) (core.Reply, error) {
	return b.complete(ctx, &core.Request{
		Model:       b.model,
		System:      systemPrompt,
		Text:        description,
		MaxTokens:   b.maxTokens,
		Temperature: generationTemperature,
	})
}

// ImageBackend sends a screenshot under a fixed system prompt.
type ImageBackend struct {
	binding
	logger zerolog.Logger
}

// NewImageBackend validates cfg and resolves its rate row.
func NewImageBackend(cfg BackendConfig) (*ImageBackend, error) {
	b, err := bind(cfg)
	if err != nil {
		return nil, fmt.Errorf("image backend: %w", err)
	}
	return &ImageBackend{binding: b, logger: cfg.Logger}, nil
}

// InvokeImage sends img as inline base64 data with no user text. img is
// released when the call returns, whatever the outcome; a failed release is
// logged and does not fail the call.
func (b *ImageBackend) InvokeImage(ctx context.Context, img *imagestore.Image, systemPrompt string) (core.Reply, error) {
	if img == nil {
		return core.Reply{}, core.NewBackendError(b.provider, 0, fmt.Errorf("%w: image is nil", core.ErrInvalidRequest))
	}
	defer func() {
		if err := img.Release(); err != nil {
			b.logger.Warn().Err(err).Str("path", img.Path).Msg("release temporary image")
		}
	}()

	data, err := img.Bytes()
	if err != nil {
		return core.Reply{}, core.NewBackendError(b.provider, 0, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err))
	}
	return b.complete(ctx, &core.Request{
		Model:       b.model,
		System:      systemPrompt,
		Image:       &core.Image{MediaType: img.MediaType, Data: data},
		MaxTokens:   b.maxTokens,
		Temperature: generationTemperature,
	})
}
