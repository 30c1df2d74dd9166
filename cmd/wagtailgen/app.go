package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"wagtailgen/internal/config"
	"wagtailgen/internal/format"
	"wagtailgen/internal/imagestore"
	"wagtailgen/internal/llm"
	"wagtailgen/internal/logging"
	"wagtailgen/internal/pipeline"
	"wagtailgen/internal/prompt"
)

var errUnsupportedProvider = errors.New("unsupported provider")

type globalOptions struct {
	configPath string
	envFile    string
	provider   string
}

// app holds everything a command needs, built once from config.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	gen    *pipeline.Generator
}

func loadApp(opts globalOptions) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:    strings.TrimSpace(opts.configPath),
		EnvFile: strings.TrimSpace(opts.envFile),
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if p := strings.ToLower(strings.TrimSpace(opts.provider)); p != "" {
		cfg.Provider.Default = p
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	formatter, err := buildFormatter(cfg)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		gen: pipeline.New(pipeline.Config{
			Formatter: formatter,
			Prompts:   prompt.Default(),
			Logger:    logger,
		}),
	}, nil
}

func buildFormatter(cfg config.Config) (pipeline.Formatter, error) {
	settings, err := cfg.FormatterSettings()
	if err != nil {
		return nil, fmt.Errorf("resolve formatter settings: %w", err)
	}
	if !settings.Enabled {
		return format.Noop{}, nil
	}
	return format.NewRuff(settings.Command, settings.LineLength, settings.Timeout), nil
}

func buildProvider(settings config.ProviderSettings) (llm.Provider, error) {
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w", settings.Name, llm.ErrMissingAPIKey)
	}
	switch settings.Name {
	case config.ProviderAnthropic:
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Version: settings.Version,
			Timeout: settings.RequestTimeout,
			Retry:   settings.Retry,
		}), nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Timeout: settings.RequestTimeout,
			Retry:   settings.Retry,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedProvider, settings.Name)
	}
}

func buildTextBackend(cfg config.Config) (*llm.TextBackend, error) {
	settings, err := cfg.TextSettings()
	if err != nil {
		return nil, fmt.Errorf("resolve provider settings: %w", err)
	}
	client, err := buildProvider(settings)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}
	return llm.NewTextBackend(llm.BackendConfig{
		Provider:  settings.Name,
		Model:     settings.Model,
		Client:    client,
		Rates:     cfg.RateTable(),
		MaxTokens: settings.MaxTokens,
	})
}

func buildImageBackend(cfg config.Config, logger zerolog.Logger) (*llm.ImageBackend, error) {
	if cfg.Provider.Image != config.ProviderAnthropic {
		return nil, fmt.Errorf("%w for images: %s", errUnsupportedProvider, cfg.Provider.Image)
	}
	settings, err := cfg.AnthropicImageSettings()
	if err != nil {
		return nil, fmt.Errorf("resolve image provider settings: %w", err)
	}
	client, err := buildProvider(settings)
	if err != nil {
		return nil, fmt.Errorf("build image provider: %w", err)
	}
	return llm.NewImageBackend(llm.BackendConfig{
		Provider:  settings.Name,
		Model:     settings.Model,
		Client:    client,
		Rates:     cfg.RateTable(),
		MaxTokens: settings.MaxTokens,
		Logger:    logger,
	})
}

func buildImageStore(cfg config.Config) (*imagestore.Store, error) {
	store, err := imagestore.New(cfg.Server.UploadDir, imagestore.DefaultMaxEdge)
	if err != nil {
		return nil, fmt.Errorf("prepare image store: %w", err)
	}
	return store, nil
}
