package openaiprovider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"wagtailgen/internal/llm/core"
)

// Name identifies this provider in rate tables and errors.
const Name = "openai"

const (
	defaultMaxTokens = 2048
	defaultTimeout   = 90 * time.Second
)

// Config configures the OpenAI provider.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      core.RetryPolicy
}

// Provider wraps the official openai-go client for chat completions.
type Provider struct {
	apiKey string
	retry  core.RetryPolicy

	client openai.Client
}

// New constructs a provider with sane defaults.
func New(cfg Config) *Provider {
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
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		clientOptions = append(clientOptions, option.WithBaseURL(baseURL))
	}

	return &Provider{
		apiKey: apiKey,
		retry:  core.NormalizeRetryPolicy(cfg.Retry),
		client: openai.NewClient(clientOptions...),
	}
}

// Complete sends a system + user chat completion and waits for the reply.
// Image input is not supported by this integration.
func (p *Provider) Complete(ctx context.Context, req *core.Request) (*core.Reply, error) {
	if p == nil {
		return nil, fmt.Errorf("openai provider is nil")
	}
	if strings.TrimSpace(p.apiKey) == "" {
		return nil, core.NewBackendError(Name, 0, core.ErrMissingAPIKey)
	}
	if err := req.Validate(); err != nil {
		return nil, core.NewBackendError(Name, 0, err)
	}
	if req.Capability() != core.CapabilityText {
		return nil, core.NewBackendError(Name, 0, fmt.Errorf("%w: %s input", core.ErrUnsupportedCapability, req.Capability()))
	}

	var reply *core.Reply
	params := toChatParams(req)
	err := core.Retry(ctx, p.retry, func(ctx context.Context) error {
		completion, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			wrapped := fmt.Errorf("openai chat completion: %w", err)
			if isRetryableProviderError(err) {
				return core.MarkRetryable(wrapped)
			}
			return wrapped
		}
		reply, err = toReply(completion)
		return err
	})
	if err != nil {
		return nil, core.NewBackendError(Name, statusCode(err), err)
	}
	return reply, nil
}

func toChatParams(req *core.Request) openai.ChatCompletionNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Text))

	return openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(req.Model),
		Messages:            messages,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
}

func toReply(completion *openai.ChatCompletion) (*core.Reply, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return nil, core.ErrEmptyReply
	}
	choice := completion.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, core.ErrEmptyReply
	}

	return &core.Reply{
		Text: choice.Message.Content,
		Usage: core.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
		Model:      completion.Model,
		StopReason: mapFinishReason(string(choice.FinishReason)),
	}, nil
}

func mapFinishReason(reason string) core.StopReason {
	switch reason {
	case "length":
		return core.StopReasonLength
	case "content_filter":
		return core.StopReasonRefusal
	default:
		return core.StopReasonStop
	}
}

// isRetryableProviderError identifies transient transport/API failures worth retrying.
func isRetryableProviderError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return core.IsRetryableStatus(apiErr.StatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
