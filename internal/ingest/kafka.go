// Package ingest feeds turn requests from a Kafka topic onto the bus, so
// schedulers, cron jobs and other services can nudge a personality to speak.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/KafClaw/chatterbox/internal/bus"
	"github.com/KafClaw/chatterbox/internal/config"
)

// TurnRequest is the wire form of a request on the topic.
type TurnRequest struct {
	Agent       string `json:"agent"`
	Destination string `json:"destination"`
	Text        string `json:"text,omitempty"`
}

// Validate checks the fields needed to address a personality.
func (r TurnRequest) Validate() error {
	if strings.TrimSpace(r.Agent) == "" {
		return errors.New("agent is required")
	}
	if strings.TrimSpace(r.Destination) == "" {
		return errors.New("destination is required")
	}
	return nil
}

// DecodeTurnRequest parses and validates one message value.
func DecodeTurnRequest(value []byte) (TurnRequest, error) {
	var r TurnRequest
	if err := json.Unmarshal(value, &r); err != nil {
		return r, fmt.Errorf("decode turn request: %w", err)
	}
	r.Agent = strings.TrimSpace(r.Agent)
	r.Destination = strings.TrimSpace(r.Destination)
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("invalid turn request: %w", err)
	}
	return r, nil
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource consumes turn requests and republishes them on the bus.
type KafkaSource struct {
	reader messageReader
	topic  string
	bus    *bus.MessageBus
}

// NewKafkaSource creates a consumer-group reader for cfg.Topic.
func NewKafkaSource(cfg config.KafkaConfig, messageBus *bus.MessageBus) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka: no topic configured")
	}
	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Dialer:   dialer,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaSource{reader: reader, topic: cfg.Topic, bus: messageBus}, nil
}

// Run reads until ctx is cancelled. Malformed messages are logged and skipped.
func (s *KafkaSource) Run(ctx context.Context) error {
	defer s.reader.Close()
	slog.Info("Kafka ingest started", "topic", s.topic)

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("Kafka ingest: read error", "topic", s.topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		req, err := DecodeTurnRequest(msg.Value)
		if err != nil {
			slog.Warn("Kafka ingest: skipping message", "topic", s.topic, "offset", msg.Offset, "error", err)
			continue
		}
		in := &bus.InboundMessage{
			Channel:  req.Agent,
			SenderID: "kafka",
			ChatID:   req.Destination,
			TraceID:  uuid.NewString(),
			Content:  req.Text,
			Source:   bus.SourceKafka,
		}
		if err := s.bus.PublishInbound(ctx, in); err != nil {
			return nil
		}
	}
}

// Publisher writes turn requests to the topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a writer for cfg.Topic.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Transport:              transport,
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}, nil
}

// Publish writes r keyed by agent so one agent's requests stay ordered.
func (p *Publisher) Publish(ctx context.Context, r TurnRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(r.Agent), Value: value})
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
