// Package gemini adapts the Google Gemini API through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/upb/persona-router/services/providers"
)

const providerName = "gemini"

// GeminiAdapter implements the Adapter interface for Google Gemini
type GeminiAdapter struct {
	config providers.ProviderConfig

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGeminiAdapter creates a new Gemini adapter.
// The SDK client is built lazily on first use.
func NewGeminiAdapter(config providers.ProviderConfig) *GeminiAdapter {
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	return &GeminiAdapter{config: config}
}

// Name returns the provider name
func (a *GeminiAdapter) Name() string {
	return providerName
}

// Invoke performs a single generateContent call
func (a *GeminiAdapter) Invoke(ctx context.Context, req *providers.InvokeRequest) (*providers.InvokeResponse, error) {
	if a.config.APIKey == "" {
		return nil, providers.NewMissingCredentialError(a.Name())
	}

	client, err := a.getClient()
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeRequestError, "failed to create client", 0, false, err)
	}

	startTime := time.Now()

	var genConfig *genai.GenerateContentConfig
	if req.SystemInstruction != "" {
		genConfig = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		}
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, buildContents(req), genConfig)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, a.classifyError(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, providers.NewProviderError(a.Name(), providers.CodeEmptyResponse, "no candidate text returned", http.StatusOK, false, nil)
	}

	return &providers.InvokeResponse{
		Text:     text,
		Model:    req.Model,
		Provider: a.Name(),
		Latency:  time.Since(startTime),
		Raw:      resp,
	}, nil
}

func (a *GeminiAdapter) getClient() (*genai.Client, error) {
	a.once.Do(func() {
		httpClient := a.config.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: a.config.Timeout}
		}

		cfg := &genai.ClientConfig{
			APIKey:     a.config.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		}
		if a.config.BaseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: a.config.BaseURL}
		}

		a.client, a.clientErr = genai.NewClient(context.Background(), cfg)
	})
	return a.client, a.clientErr
}

// buildContents maps history and prompt onto Gemini's user/model turns
func buildContents(req *providers.InvokeRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, msg := range req.History {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case providers.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		case providers.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))
}

// apiStatus extracts the HTTP status the SDK reports in its typed error
func apiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

func (a *GeminiAdapter) classifyError(err error) error {
	status := apiStatus(err)

	code := providers.CodeVendorError
	switch {
	case status == http.StatusTooManyRequests:
		code = providers.CodeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = providers.CodeUnauthorized
	case status >= 400:
		code = providers.CodeHTTPError
	}

	retryable := status == 0 || status >= 500 || status == http.StatusTooManyRequests
	return providers.NewProviderError(a.Name(), code, "generateContent failed", status, retryable, err)
}
