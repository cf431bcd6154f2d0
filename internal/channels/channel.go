// Package channels connects personalities to chat platforms.
package channels

import (
	"context"
	"time"
)

// ChatMessage is one message of channel history.
type ChatMessage struct {
	Author    string
	Text      string
	Timestamp time.Time
	// FromMe is set when the message was posted by the bot reading history.
	FromMe bool
}

// Platform is the chat surface a bot reads from and writes to.
type Platform interface {
	// History returns up to limit recent messages in dest, oldest first.
	History(ctx context.Context, dest string, limit int) ([]ChatMessage, error)
	// Send posts text to dest. Empty text is a no-op.
	Send(ctx context.Context, dest, text string) error
	// Members lists the display names that can be pinged in dest.
	Members(ctx context.Context, dest string) ([]string, error)
}
