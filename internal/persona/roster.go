package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Roster is the set of personalities that share the chat space.
type Roster struct {
	Personalities []*Personality `toml:"personality" yaml:"personalities"`
}

// LoadRoster reads a roster file. The format is chosen by extension:
// .toml, .yaml or .yml.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return ParseRoster(data, filepath.Ext(path))
}

// ParseRoster decodes roster data in the format named by ext.
func ParseRoster(data []byte, ext string) (*Roster, error) {
	var r Roster
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "toml":
		if err := toml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse roster toml: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse roster yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported roster format %q", ext)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks every personality and rejects duplicate names.
func (r *Roster) Validate() error {
	if len(r.Personalities) == 0 {
		return fmt.Errorf("roster has no personalities")
	}
	seen := make(map[string]struct{}, len(r.Personalities))
	for i, p := range r.Personalities {
		if p == nil {
			return fmt.Errorf("personality %d is empty", i)
		}
		p.Name = strings.TrimSpace(p.Name)
		p.Kind = Kind(strings.ToLower(strings.TrimSpace(string(p.Kind))))
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate personality %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Get returns the personality with the given name.
func (r *Roster) Get(name string) (*Personality, bool) {
	for _, p := range r.Personalities {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Names returns personality names in roster order.
func (r *Roster) Names() []string {
	out := make([]string, len(r.Personalities))
	for i, p := range r.Personalities {
		out[i] = p.Name
	}
	return out
}
