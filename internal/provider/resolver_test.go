package provider

import (
	"errors"
	"testing"

	"github.com/KafClaw/chatterbox/internal/config"
	"github.com/KafClaw/chatterbox/internal/secrets"
	"github.com/zalando/go-keyring"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		in, prov, model string
	}{
		{"claude/claude-3-5-haiku-latest", "claude", "claude-3-5-haiku-latest"},
		{"OpenRouter/meta/llama-3", "openrouter", "meta/llama-3"},
		{"gpt-4o", "", "gpt-4o"},
	}
	for _, tc := range tests {
		prov, model := ParseModelString(tc.in)
		if prov != tc.prov || model != tc.model {
			t.Errorf("ParseModelString(%q) = %q, %q", tc.in, prov, model)
		}
	}
}

func TestResolve(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Anthropic.APIKey = "ant"
	cfg.Providers.OpenAI.APIKey = "oai"
	cfg.Providers.XAI.APIKey = "xai"

	tests := []struct {
		model        string
		wantType     string
		defaultModel string
	}{
		{"", "anthropic", "claude-3-5-haiku-latest"},
		{"anthropic/claude-3-opus", "anthropic", "claude-3-opus"},
		{"claude-bare", "anthropic", "claude-bare"},
		{"openai/gpt-4o-mini", "openai", "gpt-4o-mini"},
		{"openrouter/meta/llama-3", "openai", "meta/llama-3"},
		{"grok/grok-2", "openai", "grok-2"},
	}
	for _, tc := range tests {
		c, err := Resolve(cfg, tc.model)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.model, err)
		}
		switch c.(type) {
		case *AnthropicProvider:
			if tc.wantType != "anthropic" {
				t.Errorf("Resolve(%q): got anthropic", tc.model)
			}
		case *OpenAIProvider:
			if tc.wantType != "openai" {
				t.Errorf("Resolve(%q): got openai", tc.model)
			}
		}
		if c.DefaultModel() != tc.defaultModel {
			t.Errorf("Resolve(%q): model %q, want %q", tc.model, c.DefaultModel(), tc.defaultModel)
		}
	}
}

func TestResolveMissingKey(t *testing.T) {
	keyring.MockInit()
	cfg := config.DefaultConfig()
	_, err := Resolve(cfg, "openai/gpt-4o")
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Provider != "openai" {
		t.Fatalf("expected openai ProviderError, got %v", err)
	}

	_, err = Resolve(cfg, "mystery/model")
	if !errors.As(err, &perr) || perr.Provider != "mystery" {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestResolveKeyringFallback(t *testing.T) {
	keyring.MockInit()
	if err := secrets.SaveAPIKey("xai", "from-keyring"); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg := config.DefaultConfig()
	c, err := Resolve(cfg, "grok/grok-3-mini")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	p, ok := c.(*OpenAIProvider)
	if !ok {
		t.Fatalf("got %T, want *OpenAIProvider", c)
	}
	if p.apiKey != "from-keyring" {
		t.Fatalf("apiKey = %q", p.apiKey)
	}
}
