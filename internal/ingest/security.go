package ingest

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/KafClaw/chatterbox/internal/config"
)

const dialTimeout = 8 * time.Second

// saslMechanism maps the configured mechanism name to a kafka-go mechanism.
// A nil mechanism means SASL is off.
func saslMechanism(cfg config.KafkaConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(strings.TrimSpace(cfg.SASLMechanism)) {
	case "":
		return nil, nil
	case "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("kafka: unsupported sasl mechanism %q", cfg.SASLMechanism)
	}
}

func tlsConfig(cfg config.KafkaConfig) *tls.Config {
	if !cfg.TLS {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

// newDialer builds the reader-side dialer with TLS and SASL applied.
func newDialer(cfg config.KafkaConfig) (*kafka.Dialer, error) {
	mech, err := saslMechanism(cfg)
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		Timeout:       dialTimeout,
		DualStack:     true,
		TLS:           tlsConfig(cfg),
		SASLMechanism: mech,
	}, nil
}

// newTransport builds the writer-side transport with TLS and SASL applied.
func newTransport(cfg config.KafkaConfig) (*kafka.Transport, error) {
	mech, err := saslMechanism(cfg)
	if err != nil {
		return nil, err
	}
	return &kafka.Transport{
		DialTimeout: dialTimeout,
		TLS:         tlsConfig(cfg),
		SASL:        mech,
	}, nil
}
