package provider

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/KafClaw/chatterbox/internal/config"
	"github.com/KafClaw/chatterbox/internal/secrets"
)

// providerAliases maps common aliases to canonical provider IDs.
var providerAliases = map[string]string{
	"anthropic": "claude",
	"grok":      "xai",
}

// NormalizeProviderID resolves aliases and normalizes the provider ID.
func NormalizeProviderID(id string) string {
	lower := strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := providerAliases[lower]; ok {
		return canonical
	}
	return lower
}

// ParseModelString splits a "provider/model" string into provider ID and model name.
// For OpenRouter, the format is "openrouter/vendor/model" (three segments).
func ParseModelString(s string) (providerID, modelName string) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 {
		return "", s
	}
	return strings.ToLower(parts[0]), parts[1]
}

// ProviderError is returned when a provider cannot be constructed.
type ProviderError struct {
	Provider string
	Hint     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Hint)
}

// apiKey returns the configured key, falling back to the OS keyring entry
// stored under providerID.
func apiKey(configured, providerID string) string {
	if k := strings.TrimSpace(configured); k != "" {
		return k
	}
	k, err := secrets.LoadAPIKey(providerID)
	if err != nil {
		slog.Debug("No keyring API key", "provider", providerID, "error", err)
		return ""
	}
	return k
}

// Resolve builds the Completer for a model string such as
// "claude/claude-3-5-haiku-latest". An empty model uses cfg.Model.Name. A bare
// model name without a provider prefix goes to Anthropic.
func Resolve(cfg *config.Config, model string) (Completer, error) {
	if strings.TrimSpace(model) == "" {
		model = cfg.Model.Name
	}
	provID, name := ParseModelString(model)
	if provID == "" {
		provID = "claude"
	}
	t := Timeouts{Connect: cfg.Model.ConnectTimeout(), Read: cfg.Model.ReadTimeout()}

	switch NormalizeProviderID(provID) {
	case "claude":
		key := apiKey(cfg.Providers.Anthropic.APIKey, "claude")
		if key == "" {
			return nil, &ProviderError{Provider: "claude", Hint: "set providers.anthropic.apiKey, CHATTERBOX_ANTHROPIC_API_KEY or run `chatterbox keys set claude`"}
		}
		return NewAnthropicProvider(key, cfg.Providers.Anthropic.APIBase, name, t), nil

	case "openai":
		key := apiKey(cfg.Providers.OpenAI.APIKey, "openai")
		if key == "" {
			return nil, &ProviderError{Provider: "openai", Hint: "set providers.openai.apiKey in config or CHATTERBOX_OPENAI_API_KEY"}
		}
		return NewOpenAIProvider(key, cfg.Providers.OpenAI.APIBase, name, t), nil

	case "openrouter":
		key := apiKey(cfg.Providers.OpenAI.APIKey, "openrouter")
		if key == "" {
			return nil, &ProviderError{Provider: "openrouter", Hint: "set providers.openai.apiKey to an OpenRouter key"}
		}
		base := cfg.Providers.OpenAI.APIBase
		if base == "" {
			base = "https://openrouter.ai/api/v1"
		}
		return NewOpenAIProvider(key, base, name, t), nil

	case "xai":
		key := apiKey(cfg.Providers.XAI.APIKey, "xai")
		if key == "" {
			return nil, &ProviderError{Provider: "xai", Hint: "set providers.xai.apiKey in config or CHATTERBOX_XAI_API_KEY"}
		}
		return NewXAIProvider(key, name, t), nil

	default:
		return nil, &ProviderError{Provider: provID, Hint: "unknown provider; use claude, openai, openrouter or xai"}
	}
}
