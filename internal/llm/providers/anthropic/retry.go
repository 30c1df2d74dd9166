package anthropicprovider

import (
	"errors"
	"net"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"wagtailgen/internal/llm/core"
)

// isRetryableProviderError identifies transient transport/API failures worth retrying.
func isRetryableProviderError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return core.IsRetryableStatus(apiErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
