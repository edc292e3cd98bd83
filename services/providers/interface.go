package providers

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrMissingCredential is returned by an adapter that was built without an API key.
// Adapters return it before touching the network.
var ErrMissingCredential = errors.New("provider credential not configured")

// Adapter represents a single AI vendor (OpenAI, Gemini, DeepSeek, etc.)
type Adapter interface {
	// Name returns the vendor name (e.g., "openai", "gemini", "deepseek")
	Name() string

	// Invoke performs one chat call and returns its plain text.
	// Implementations must not retry and must honor ctx cancellation.
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)
}

// Role values used in conversation history
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// InvokeRequest is the uniform call shape every adapter accepts
type InvokeRequest struct {
	// Model identifier (e.g., "gpt-4o-mini", "gemini-2.0-flash")
	Model string `json:"model"`

	// Prompt is the current user turn
	Prompt string `json:"prompt"`

	// SystemInstruction is optional; each vendor places it per its own convention
	SystemInstruction string `json:"system_instruction,omitempty"`

	// History holds prior turns, oldest first
	History []Message `json:"history,omitempty"`
}

// InvokeResponse is the uniform adapter result
type InvokeResponse struct {
	// Text is the assistant reply
	Text string `json:"text"`

	// Model reported by the vendor (may differ from the requested alias)
	Model string `json:"model"`

	// Provider that handled the request
	Provider string `json:"provider"`

	// Usage statistics, when the vendor reports them
	Usage Usage `json:"usage"`

	// Latency of the vendor call
	Latency time.Duration `json:"latency"`

	// Raw is the vendor response envelope, passed through untouched
	Raw interface{} `json:"-"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConfig holds common configuration for adapters
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout is the transport ceiling; per-persona deadlines are enforced by the router
	Timeout time.Duration

	// Additional headers
	Headers map[string]string

	// HTTPClient overrides the pooled client (tests)
	HTTPClient *http.Client
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 2 * time.Minute,
		Headers: make(map[string]string),
	}
}

// Error codes shared by adapters
const (
	CodeMissingCredential = "missing_credential"
	CodeRateLimited       = "rate_limit_exceeded"
	CodeUnauthorized      = "unauthorized"
	CodeHTTPError         = "http_error"
	CodeMalformedResponse = "malformed_response"
	CodeEmptyResponse     = "empty_response"
	CodeRequestError      = "request_error"
	CodeVendorError       = "vendor_error"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates the failure is transient on the vendor side
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// NewMissingCredentialError is what adapters return when no API key is configured
func NewMissingCredentialError(provider string) *ProviderError {
	return NewProviderError(provider, CodeMissingCredential, "API key is not configured", 0, false, ErrMissingCredential)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// IsRateLimited reports a 429 / quota error from any vendor
func IsRateLimited(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code == CodeRateLimited || provErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsAuthError reports a rejected credential
func IsAuthError(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code == CodeUnauthorized ||
			provErr.StatusCode == http.StatusUnauthorized ||
			provErr.StatusCode == http.StatusForbidden
	}
	return false
}

// ErrorCode extracts the vendor error code, or "" when err is not a ProviderError
func ErrorCode(err error) string {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code
	}
	return ""
}

// BuildMessages flattens the uniform request into a chat transcript:
// optional system message, history in order, then the prompt as the final user turn.
// Vendors with a leading system-role convention use this directly.
func BuildMessages(req *InvokeRequest) []Message {
	messages := make([]Message, 0, len(req.History)+2)
	if req.SystemInstruction != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemInstruction})
	}
	for _, msg := range req.History {
		if msg.Content == "" {
			continue
		}
		messages = append(messages, msg)
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.Prompt})
	return messages
}
