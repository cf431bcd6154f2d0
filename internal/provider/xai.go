package provider

const xaiDefaultBase = "https://api.x.ai/v1"

// NewXAIProvider creates an OpenAI-compatible provider targeting the xAI API.
func NewXAIProvider(apiKey, defaultModel string, t Timeouts) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "grok-3"
	}
	return NewOpenAIProvider(apiKey, xaiDefaultBase, defaultModel, t)
}
