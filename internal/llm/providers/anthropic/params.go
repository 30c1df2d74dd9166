package anthropicprovider

import (
	"encoding/base64"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"wagtailgen/internal/llm/core"
)

// defaultMaxTokens is used when callers do not provide an explicit token budget.
const defaultMaxTokens = 2048

// mapStopReason maps Anthropic stop reasons to canonical provider-agnostic values.
func mapStopReason(reason string) core.StopReason {
	switch reason {
	case "max_tokens":
		return core.StopReasonLength
	case "refusal":
		return core.StopReasonRefusal
	default:
		return core.StopReasonStop
	}
}

// toMessageParams validates and converts a canonical request into SDK params.
func toMessageParams(req *core.Request) (anthropic.MessageNewParams, error) {
	if err := req.Validate(); err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(toUserBlock(req))},
		Temperature: anthropic.Float(req.Temperature),
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params, nil
}

// toUserBlock builds the single user content block: the description for text
// requests, or the base64 image with no accompanying text.
func toUserBlock(req *core.Request) anthropic.ContentBlockParamUnion {
	if req.Capability() == core.CapabilityImage {
		encoded := base64.StdEncoding.EncodeToString(req.Image.Data)
		return anthropic.NewImageBlockBase64(req.Image.MediaType, encoded)
	}
	return anthropic.NewTextBlock(req.Text)
}

