// Package deepseek adapts DeepSeek's OpenAI-compatible chat endpoint.
package deepseek

import (
	"github.com/upb/persona-router/services/providers"
	"github.com/upb/persona-router/services/providers/openai"
)

const (
	defaultBaseURL = "https://api.deepseek.com"
	providerName   = "deepseek"
)

// NewDeepSeekAdapter creates an adapter for DeepSeek chat models
func NewDeepSeekAdapter(config providers.ProviderConfig) *openai.OpenAIAdapter {
	return openai.NewCompatibleAdapter(providerName, defaultBaseURL, config)
}
