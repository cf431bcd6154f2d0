package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicDefaultBase = "https://api.anthropic.com/v1"
	anthropicVersion     = "2023-06-01"
)

// AnthropicProvider implements Completer using the Anthropic messages API.
type AnthropicProvider struct {
	apiKey       string
	apiBase      string
	defaultModel string
	timeouts     Timeouts
	httpClient   *http.Client
}

// NewAnthropicProvider creates a provider for the Anthropic API.
func NewAnthropicProvider(apiKey, apiBase, defaultModel string, t Timeouts) *AnthropicProvider {
	if apiBase == "" {
		apiBase = anthropicDefaultBase
	}
	if defaultModel == "" {
		defaultModel = "claude-3-5-haiku-latest"
	}
	t = t.withDefaults()
	return &AnthropicProvider{
		apiKey:       apiKey,
		apiBase:      strings.TrimSuffix(apiBase, "/"),
		defaultModel: defaultModel,
		timeouts:     t,
		httpClient:   newHTTPClient(t),
	}
}

// DefaultModel returns the configured default model.
func (p *AnthropicProvider) DefaultModel() string {
	return p.defaultModel
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a messages request.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) Completion {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Call())
	defer cancel()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Failed(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/messages", bytes.NewReader(body))
	if err != nil {
		return Failed(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Failed(fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return Failed(&apiError{Status: resp.StatusCode, Body: string(respBody)})
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Failed(fmt.Errorf("parse response: %w", err))
	}
	if apiResp.Error != nil {
		return Failed(fmt.Errorf("anthropic %s: %s", apiResp.Error.Type, apiResp.Error.Message))
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Failed(fmt.Errorf("no text in response"))
	}
	return OK(text.String())
}
