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

// OpenAIProvider implements Completer using the OpenAI-compatible
// chat/completions API. It also serves OpenRouter and xAI.
type OpenAIProvider struct {
	apiKey       string
	apiBase      string
	defaultModel string
	timeouts     Timeouts
	httpClient   *http.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(apiKey, apiBase, defaultModel string, t Timeouts) *OpenAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	t = t.withDefaults()
	return &OpenAIProvider{
		apiKey:       apiKey,
		apiBase:      strings.TrimSuffix(apiBase, "/"),
		defaultModel: defaultModel,
		timeouts:     t,
		httpClient:   newHTTPClient(t),
	}
}

// DefaultModel returns the configured default model.
func (p *OpenAIProvider) DefaultModel() string {
	return p.defaultModel
}

// OpenAI API response types
type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
}

type openAIChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Complete sends a chat completion request. The system prompt is sent as a
// leading system message.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) Completion {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Call())
	defer cancel()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	body := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Failed(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return Failed(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Failed(fmt.Errorf("parse response: %w", err))
	}
	if len(apiResp.Choices) == 0 {
		return Failed(fmt.Errorf("no choices in response"))
	}
	return OK(apiResp.Choices[0].Message.Content)
}
