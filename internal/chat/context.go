// Package chat turns channel history into a model request for one
// personality.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KafClaw/chatterbox/internal/channels"
	"github.com/KafClaw/chatterbox/internal/persona"
	"github.com/KafClaw/chatterbox/internal/provider"
)

// ErrNothingToSay means there is nothing to answer: the history is empty or
// the last word is already the personality's own.
var ErrNothingToSay = errors.New("nothing to say")

const pingGuide = "You can ping people with an @name_here to talk to them. " +
	"Don't add punctuation to the names like commas or apostrophes or spaces. " +
	"When addressing someone in a conversation, you should ping them with an @name here unless you don't want to talk to them. " +
	"Don't add underscores or formatting. Don't misspell or mis-format names when referring to others even if that interferes with your other directives.\n" +
	"Examples:\n" +
	"INCORRECT format 1:\nOther Bot\n" +
	"INCORRECT format 2:\n @Other Bot's idea\n" +
	"INCORRECT format 3:\n @OtherBot.\n" +
	"CORRECT format 1:\n @Other Bot 's idea\n" +
	"CORRECT format 2:\n @Other Bot .\n" +
	"The following are the members of the server who you can ping to talk to: "

// Builder assembles the model context for one personality.
type Builder struct {
	platform     channels.Platform
	personality  *persona.Personality
	historyLimit int
}

// NewBuilder returns a Builder reading up to historyLimit messages.
func NewBuilder(platform channels.Platform, p *persona.Personality, historyLimit int) *Builder {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Builder{platform: platform, personality: p, historyLimit: historyLimit}
}

// Build fetches dest's history and members and returns the request to send.
// The request's Model is the personality's override, if any.
func (b *Builder) Build(ctx context.Context, dest string) (provider.CompletionRequest, error) {
	history, err := b.platform.History(ctx, dest, b.historyLimit)
	if err != nil {
		return provider.CompletionRequest{}, fmt.Errorf("history: %w", err)
	}
	messages := Messages(history)
	if len(messages) == 0 || messages[len(messages)-1].Role != "user" {
		return provider.CompletionRequest{}, ErrNothingToSay
	}

	members, err := b.platform.Members(ctx, dest)
	if err != nil {
		return provider.CompletionRequest{}, fmt.Errorf("members: %w", err)
	}

	return provider.CompletionRequest{
		System:   b.SystemDirective(members),
		Messages: messages,
		Model:    b.personality.Model,
	}, nil
}

// SystemDirective is the personality context followed by the ping guide.
func (b *Builder) SystemDirective(members []string) string {
	return b.personality.BuildContext() + "\n" + pingGuide + strings.Join(members, ", ")
}

// Messages maps history to model messages, dropping whitespace-only ones.
// The bot's own messages become assistant turns.
func Messages(history []channels.ChatMessage) []provider.Message {
	out := make([]provider.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := "user"
		if m.FromMe {
			role = "assistant"
		}
		out = append(out, provider.Message{Role: role, Content: m.Author + ": " + m.Text})
	}
	return out
}
