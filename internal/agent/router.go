package agent

import (
	"context"
	"log/slog"

	"github.com/KafClaw/chatterbox/internal/bus"
)

// Router hands inbound messages to the bot they are addressed to.
type Router struct {
	bus  *bus.MessageBus
	bots map[string]*Bot
}

// NewRouter creates a Router over bots, keyed by personality name.
func NewRouter(b *bus.MessageBus, bots ...*Bot) *Router {
	r := &Router{bus: b, bots: make(map[string]*Bot, len(bots))}
	for _, bot := range bots {
		r.bots[bot.Name()] = bot
	}
	return r
}

// Run consumes the bus until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	slog.Info("Router started", "bots", len(r.bots))
	for {
		msg, err := r.bus.ConsumeInbound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // Context cancelled, normal shutdown
			}
			slog.Error("Failed to consume message", "error", err)
			continue
		}

		bot, ok := r.bots[msg.Channel]
		if !ok {
			slog.Warn("Router dropped message for unknown personality", "personality", msg.Channel, "source", msg.Source, "trace_id", msg.TraceID)
			continue
		}
		bot.HandleInbound(msg)
	}
}
