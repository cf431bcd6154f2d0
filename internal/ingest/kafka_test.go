package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KafClaw/chatterbox/internal/bus"
	"github.com/KafClaw/chatterbox/internal/config"
)

type stubReader struct {
	msgs   chan kafka.Message
	closed bool
}

func (r *stubReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *stubReader) Close() error {
	r.closed = true
	return nil
}

func TestDecodeTurnRequest(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    TurnRequest
		wantErr string
	}{
		{name: "ok", value: `{"agent":" Kant ","destination":"C1","text":"hi"}`, want: TurnRequest{Agent: "Kant", Destination: "C1", Text: "hi"}},
		{name: "no text", value: `{"agent":"Kant","destination":"C1"}`, want: TurnRequest{Agent: "Kant", Destination: "C1"}},
		{name: "bad json", value: `{`, wantErr: "decode turn request"},
		{name: "no agent", value: `{"destination":"C1"}`, wantErr: "agent is required"},
		{name: "no destination", value: `{"agent":"Kant"}`, wantErr: "destination is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeTurnRequest([]byte(tc.value))
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestKafkaSourceRepublishesAndSkipsMalformed(t *testing.T) {
	r := &stubReader{msgs: make(chan kafka.Message, 3)}
	r.msgs <- kafka.Message{Value: []byte(`not json`)}
	r.msgs <- kafka.Message{Value: []byte(`{"agent":"Hume","destination":"C7"}`)}

	b := bus.NewMessageBus()
	src := &KafkaSource{reader: r, topic: "t", bus: b}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	consumeCtx, consumeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer consumeCancel()
	msg, err := b.ConsumeInbound(consumeCtx)
	require.NoError(t, err)
	assert.Equal(t, "Hume", msg.Channel)
	assert.Equal(t, "C7", msg.ChatID)
	assert.Equal(t, bus.SourceKafka, msg.Source)
	assert.NotEmpty(t, msg.TraceID)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, r.closed)
	assert.Equal(t, 0, b.InboundSize())
}

func TestNewKafkaSourceValidatesConfig(t *testing.T) {
	_, err := NewKafkaSource(config.KafkaConfig{Topic: "t"}, bus.NewMessageBus())
	assert.ErrorContains(t, err, "no brokers")

	_, err = NewKafkaSource(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, bus.NewMessageBus())
	assert.ErrorContains(t, err, "no topic")
}

func TestPublisherRejectsInvalid(t *testing.T) {
	p, err := NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	defer p.Close()

	err = p.Publish(context.Background(), TurnRequest{Agent: "x"})
	assert.ErrorContains(t, err, "destination is required")
}
