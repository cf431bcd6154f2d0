// Package persona defines the personalities that take turns in chat and the
// system prompts they are given.
package persona

import (
	"fmt"
	"strings"
)

// Kind selects how a personality's custom context is produced.
type Kind string

const (
	// KindPhilosophy shoehorns the philosophy of the named thinker into answers.
	KindPhilosophy Kind = "philosophy"
	// KindCustom uses the configured prompt verbatim.
	KindCustom Kind = "custom"
)

const (
	genericStart   = "You will be asked random questions. You must answer the questions unhelpfully "
	noRoleplay     = "No accents or roleplaying."
	genericEndTmpl = "Don't mention that you are a bot or that your name is %s."
)

// Personality is one agent identity and the prompt material behind it.
type Personality struct {
	Name           string `toml:"name" yaml:"name" json:"name"`
	Kind           Kind   `toml:"kind" yaml:"kind" json:"kind"`
	Prompt         string `toml:"prompt" yaml:"prompt" json:"prompt,omitempty"`
	LarpingAllowed bool   `toml:"larping_allowed" yaml:"larping_allowed" json:"larpingAllowed"`
	// Model overrides the globally configured model for this personality.
	Model string `toml:"model" yaml:"model" json:"model,omitempty"`
}

// NewPhilosophy returns a philosophy personality.
func NewPhilosophy(name, specialPrompt string, larping bool) *Personality {
	return &Personality{Name: name, Kind: KindPhilosophy, Prompt: specialPrompt, LarpingAllowed: larping}
}

// NewCustom returns a personality driven entirely by prompt.
func NewCustom(name, prompt string, larping bool) *Personality {
	return &Personality{Name: name, Kind: KindCustom, Prompt: prompt, LarpingAllowed: larping}
}

// Validate checks the fields a personality needs to build a context.
func (p *Personality) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	switch p.Kind {
	case KindPhilosophy:
	case KindCustom:
		if strings.TrimSpace(p.Prompt) == "" {
			return fmt.Errorf("personality %q: custom kind requires a prompt", p.Name)
		}
	case "":
		return fmt.Errorf("personality %q: kind is required", p.Name)
	default:
		return fmt.Errorf("personality %q: unsupported kind %q", p.Name, p.Kind)
	}
	return nil
}

// BuildContext assembles the system prompt for this personality.
func (p *Personality) BuildContext() string {
	var b strings.Builder
	b.WriteString(genericStart)
	b.WriteString(p.customContext())
	if !p.LarpingAllowed {
		b.WriteString(noRoleplay)
	}
	b.WriteString(fmt.Sprintf(genericEndTmpl, p.Name))
	return b.String()
}

func (p *Personality) customContext() string {
	switch p.Kind {
	case KindPhilosophy:
		s := fmt.Sprintf("while at the same time trying to shoehorn in the philosophy of %s as "+
			"though you were %s. Keep it a little bit absurd. ", p.Name, p.Name)
		if extra := strings.TrimSpace(p.Prompt); extra != "" {
			s += extra + " "
		}
		return s
	default:
		s := strings.TrimSpace(p.Prompt)
		if s != "" && !strings.HasSuffix(s, " ") {
			s += " "
		}
		return s
	}
}
