package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/persona-router/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"
)

// OpenAIAdapter implements the Adapter interface for OpenAI and
// any vendor that speaks the same chat completions protocol.
type OpenAIAdapter struct {
	name       string
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	return NewCompatibleAdapter(providerName, defaultBaseURL, config)
}

// NewCompatibleAdapter creates an adapter for an OpenAI-compatible endpoint.
// baseURL is used when config.BaseURL is empty.
func NewCompatibleAdapter(name, baseURL string, config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = baseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	return &OpenAIAdapter{
		name:       name,
		config:     config,
		httpClient: httpClient,
	}
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Invoke performs a single chat completion request
func (a *OpenAIAdapter) Invoke(ctx context.Context, req *providers.InvokeRequest) (*providers.InvokeResponse, error) {
	if a.config.APIKey == "" {
		return nil, providers.NewMissingCredentialError(a.Name())
	}

	startTime := time.Now()

	reqBody, err := json.Marshal(a.buildChatRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeRequestError, "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeRequestError, "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, providers.NewProviderError(a.Name(), providers.CodeHTTPError, "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeHTTPError, "failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeMalformedResponse, "failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return nil, providers.NewProviderError(a.Name(), providers.CodeEmptyResponse, "no completion text returned", httpResp.StatusCode, false, nil)
	}

	return &providers.InvokeResponse{
		Text:     chatResp.Choices[0].Message.Content,
		Model:    chatResp.Model,
		Provider: a.Name(),
		Usage: providers.Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
		Latency: time.Since(startTime),
		Raw:     &chatResp,
	}, nil
}

// buildChatRequest converts the uniform request to the chat completions format
func (a *OpenAIAdapter) buildChatRequest(req *providers.InvokeRequest) *ChatRequest {
	messages := providers.BuildMessages(req)

	chatReq := &ChatRequest{
		Model:    req.Model,
		Messages: make([]ChatMessage, len(messages)),
	}
	for i, msg := range messages {
		chatReq.Messages[i] = ChatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return chatReq
}

// handleErrorResponse maps an error envelope to a ProviderError
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	code := providers.CodeHTTPError
	switch statusCode {
	case http.StatusTooManyRequests:
		code = providers.CodeRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		code = providers.CodeUnauthorized
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), code, http.StatusText(statusCode), statusCode, retryable, nil)
	}

	return providers.NewProviderError(
		a.Name(),
		code,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Type),
	)
}

// Chat completions wire types

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
