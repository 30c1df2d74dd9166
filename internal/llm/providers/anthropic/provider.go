package anthropicprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"wagtailgen/internal/llm/core"
)

// Name identifies this provider in rate tables and errors.
const Name = "anthropic"

const defaultTimeout = 90 * time.Second

// Config configures the Anthropic provider.
type Config struct {
	APIKey     string
	BaseURL    string
	Version    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      core.RetryPolicy
}

// Provider is a thin wrapper around the official anthropic-sdk-go client.
type Provider struct {
	apiKey string
	retry  core.RetryPolicy

	client anthropic.Client
}

// New constructs a provider with sane defaults.
func New(cfg Config) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	version := strings.TrimSpace(cfg.Version)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	clientOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0), // explicit retry behavior in this package
	}
	if baseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(baseURL))
	}
	if version != "" {
		clientOptions = append(clientOptions, option.WithHeader("anthropic-version", version))
	}

	return &Provider{
		apiKey: apiKey,
		retry:  core.NormalizeRetryPolicy(cfg.Retry),
		client: anthropic.NewClient(clientOptions...),
	}
}

// Complete sends one Messages API request and waits for the full reply.
func (p *Provider) Complete(ctx context.Context, req *core.Request) (*core.Reply, error) {
	if p == nil {
		return nil, fmt.Errorf("anthropic provider is nil")
	}
	if strings.TrimSpace(p.apiKey) == "" {
		return nil, core.NewBackendError(Name, 0, core.ErrMissingAPIKey)
	}

	params, err := toMessageParams(req)
	if err != nil {
		return nil, core.NewBackendError(Name, 0, err)
	}

	var reply *core.Reply
	err = core.Retry(ctx, p.retry, func(ctx context.Context) error {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			wrapped := fmt.Errorf("anthropic messages: %w", err)
			if isRetryableProviderError(err) {
				return core.MarkRetryable(wrapped)
			}
			return wrapped
		}
		reply, err = toReply(msg)
		return err
	})
	if err != nil {
		return nil, core.NewBackendError(Name, statusCode(err), err)
	}
	return reply, nil
}

// toReply joins the text blocks of a message into a canonical reply.
func toReply(msg *anthropic.Message) (*core.Reply, error) {
	if msg == nil {
		return nil, core.ErrEmptyReply
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, core.ErrEmptyReply
	}

	return &core.Reply{
		Text: text.String(),
		Usage: core.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Model:      string(msg.Model),
		StopReason: mapStopReason(string(msg.StopReason)),
	}, nil
}

func statusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
