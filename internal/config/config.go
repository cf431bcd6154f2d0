// Package config provides configuration types and loading for chatterbox.
//
// Environment overrides are matched by field name under a per-group prefix,
// e.g. CHATTERBOX_MODEL_READ_TIMEOUT_MS or CHATTERBOX_JOURNAL_PATH.
package config

import "time"

// Config is the root configuration struct.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Model     ModelConfig     `json:"model"`
	Providers ProvidersConfig `json:"providers"`
	Slack     SlackConfig     `json:"slack"`
	Kafka     KafkaConfig     `json:"kafka"`
	Journal   JournalConfig   `json:"journal"`
	Log       LogConfig       `json:"log"`
}

// PathsConfig groups filesystem locations.
type PathsConfig struct {
	Roster string `json:"roster"`
}

// SchedulerConfig controls how often turns are granted.
type SchedulerConfig struct {
	CallsPerMinute       int     `json:"callsPerMinute" split_words:"true"`
	DecayChancePerMinute float64 `json:"decayChancePerMinute" split_words:"true"`
	Seed                 int64   `json:"seed"`
}

// ModelConfig groups model call settings.
type ModelConfig struct {
	// Name is a "provider/model" string, e.g. "claude/claude-3-5-haiku-latest".
	Name             string  `json:"name"`
	MaxTokens        int     `json:"maxTokens" split_words:"true"`
	Temperature      float64 `json:"temperature"`
	ConnectTimeoutMs int     `json:"connectTimeoutMs" split_words:"true"`
	ReadTimeoutMs    int     `json:"readTimeoutMs" split_words:"true"`
	HistoryLimit     int     `json:"historyLimit" split_words:"true"`
}

// ConnectTimeout is the dial and TLS handshake budget.
func (m ModelConfig) ConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeoutMs) * time.Millisecond
}

// ReadTimeout is the response header budget.
func (m ModelConfig) ReadTimeout() time.Duration {
	return time.Duration(m.ReadTimeoutMs) * time.Millisecond
}

// ProvidersConfig contains API credentials per model provider.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
	XAI       ProviderConfig `json:"xai"`
}

// ProviderConfig holds one provider's credentials.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" split_words:"true"`
	APIBase string `json:"apiBase,omitempty" split_words:"true"`
}

// SlackConfig configures the Slack bots. Each personality runs as its own
// Slack app, keyed by personality name.
type SlackConfig struct {
	APIURL string                    `json:"apiUrl,omitempty" split_words:"true"`
	Bots   map[string]SlackBotConfig `json:"bots" ignored:"true"`
}

// SlackBotConfig holds the tokens for one Slack app.
type SlackBotConfig struct {
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"`
}

// KafkaConfig configures the optional turn-request topic.
type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
	GroupID string   `json:"groupId" split_words:"true"`
	// SASLMechanism is one of PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512. Empty
	// disables SASL.
	SASLMechanism string `json:"saslMechanism" split_words:"true"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	TLS           bool   `json:"tls"`
}

// JournalConfig configures the turn journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Roster: "~/.chatterbox/roster.toml",
		},
		Scheduler: SchedulerConfig{
			CallsPerMinute:       20,
			DecayChancePerMinute: 0.5,
		},
		Model: ModelConfig{
			Name:             "claude/claude-3-5-haiku-latest",
			MaxTokens:        512,
			Temperature:      1.0,
			ConnectTimeoutMs: 2000,
			ReadTimeoutMs:    4000,
			HistoryLimit:     20,
		},
		Kafka: KafkaConfig{
			Topic:   "chatterbox.turns",
			GroupID: "chatterbox",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "~/.chatterbox/timeline.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
