// Package agent wires one personality to its platform, its context builder
// and its model, and routes inbound events to the right personality.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/KafClaw/chatterbox/internal/bus"
	"github.com/KafClaw/chatterbox/internal/channels"
	"github.com/KafClaw/chatterbox/internal/chat"
	"github.com/KafClaw/chatterbox/internal/persona"
	"github.com/KafClaw/chatterbox/internal/provider"
	"github.com/KafClaw/chatterbox/internal/scheduler"
)

// Turns is the part of the scheduler a bot needs.
type Turns interface {
	RegisterTurnHandler(agent string, h scheduler.TurnHandler)
	RequestTurn(p *persona.Personality, destination string)
	SilenceAgent(agent string) int
}

// SilenceCommand, sent to a bot as the whole message, drops the bot's pending
// turns in every destination instead of asking for a new one.
const SilenceCommand = "!silence"

// BotOptions configures a Bot.
type BotOptions struct {
	Personality  *persona.Personality
	Platform     channels.Platform
	Completer    provider.Completer
	Turns        Turns
	HistoryLimit int
	MaxTokens    int
	Temperature  float64
}

// Bot speaks for one personality.
type Bot struct {
	personality *persona.Personality
	platform    channels.Platform
	builder     *chat.Builder
	completer   provider.Completer
	turns       Turns
	maxTokens   int
	temperature float64
}

// NewBot creates a Bot.
func NewBot(opts BotOptions) *Bot {
	return &Bot{
		personality: opts.Personality,
		platform:    opts.Platform,
		builder:     chat.NewBuilder(opts.Platform, opts.Personality, opts.HistoryLimit),
		completer:   opts.Completer,
		turns:       opts.Turns,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
}

// Name returns the personality name.
func (b *Bot) Name() string {
	return b.personality.Name
}

// HandleInbound asks for a turn in the message's destination. The bot
// registers itself each time, so the latest Bot for a name wins.
func (b *Bot) HandleInbound(msg *bus.InboundMessage) {
	if strings.EqualFold(strings.TrimSpace(msg.Content), SilenceCommand) {
		n := b.turns.SilenceAgent(b.Name())
		slog.Info("Bot silenced", "personality", b.Name(), "sender", msg.SenderID, "dropped", n, "trace_id", msg.TraceID)
		return
	}
	slog.Debug("Bot requesting turn", "personality", b.Name(), "destination", msg.ChatID, "source", msg.Source, "trace_id", msg.TraceID)
	b.turns.RegisterTurnHandler(b.Name(), b)
	b.turns.RequestTurn(b.personality, msg.ChatID)
}

// HandleTurn builds the context, calls the model and posts the reply.
//
// Only a model timeout is reported as an error (scheduler.ErrCallTimeout).
// Platform and model failures are logged and end the turn without a reply.
func (b *Bot) HandleTurn(ctx context.Context, turn scheduler.Turn) (scheduler.Outcome, error) {
	log := slog.With("personality", b.Name(), "destination", turn.Destination, "trace_id", turn.TraceID)

	req, err := b.builder.Build(ctx, turn.Destination)
	if errors.Is(err, chat.ErrNothingToSay) {
		log.Debug("Bot has nothing to say")
		return scheduler.OutcomeSilent, nil
	}
	if err != nil {
		log.Warn("Bot failed to build context", "error", err)
		return scheduler.OutcomeFailed, nil
	}
	req.MaxTokens = b.maxTokens
	temperature := b.temperature
	req.Temperature = &temperature

	c := b.completer.Complete(ctx, req)
	switch c.Outcome {
	case provider.OutcomeTimeout:
		log.Warn("Bot model call timed out", "error", c.Err)
		return scheduler.OutcomeTimeout, scheduler.ErrCallTimeout
	case provider.OutcomeFailure:
		log.Warn("Bot model call failed", "error", c.Err)
		return scheduler.OutcomeFailed, nil
	}

	if err := b.platform.Send(ctx, turn.Destination, c.Text); err != nil {
		log.Warn("Bot failed to deliver reply", "error", err)
		return scheduler.OutcomeFailed, nil
	}
	log.Info("Bot replied", "chars", len(c.Text))
	return scheduler.OutcomeDelivered, nil
}
