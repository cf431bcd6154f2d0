package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/KafClaw/chatterbox/internal/bus"
	"github.com/KafClaw/chatterbox/internal/config"
)

const (
	defaultSlackAPIURL = "https://slack.com/api/"
	sendAttempts       = 3
)

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

// SlackChannel is one personality's Slack app. Each personality runs under
// its own bot user so that others see it as a distinct member.
type SlackChannel struct {
	personality string
	cfg         config.SlackBotConfig
	api         *slack.Client
	bus         *bus.MessageBus

	mu        sync.RWMutex
	botUserID string
	names     map[string]string // user ID -> display name
}

// NewSlackChannel creates the Slack app for personality. apiURL may be empty.
func NewSlackChannel(personality string, cfg config.SlackBotConfig, apiURL string, messageBus *bus.MessageBus, httpClient *http.Client) (*SlackChannel, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("slack %s: missing bot token", personality)
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultSlackAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	opts := []slack.Option{
		slack.OptionHTTPClient(httpClient),
		slack.OptionAPIURL(strings.TrimRight(apiURL, "/") + "/"),
	}
	if tok := strings.TrimSpace(cfg.AppToken); tok != "" {
		opts = append(opts, slack.OptionAppLevelToken(tok))
	}
	return &SlackChannel{
		personality: personality,
		cfg:         cfg,
		api:         slack.New(strings.TrimSpace(cfg.BotToken), opts...),
		bus:         messageBus,
		names:       make(map[string]string),
	}, nil
}

func (c *SlackChannel) Name() string { return c.personality }

// Identify resolves the bot's own user ID through auth.test.
func (c *SlackChannel) Identify(ctx context.Context) error {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack %s auth.test: %w", c.personality, err)
	}
	c.mu.Lock()
	c.botUserID = resp.UserID
	c.mu.Unlock()
	slog.Info("Slack bot identified", "personality", c.personality, "user_id", resp.UserID)
	return nil
}

// BotUserID returns the bot's user ID once Identify has run.
func (c *SlackChannel) BotUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botUserID
}

// Start identifies the bot and runs socket mode until ctx is cancelled.
func (c *SlackChannel) Start(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.AppToken) == "" {
		return fmt.Errorf("slack %s: socket mode needs an app token", c.personality)
	}
	if err := c.Identify(ctx); err != nil {
		return err
	}

	client := socketmode.New(c.api)
	go c.consumeEvents(ctx, client)

	err := client.RunContext(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *SlackChannel) consumeEvents(ctx context.Context, client *socketmode.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-client.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			if evt.Request != nil {
				client.Ack(*evt.Request)
			}
			ev, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			c.handleEvent(ctx, ev)
		}
	}
}

// handleEvent publishes a turn request for app mentions in channels and for
// direct messages. Plain channel messages that mention the bot also arrive
// as app_mention events, so they are not counted twice.
func (c *SlackChannel) handleEvent(ctx context.Context, ev slackevents.EventsAPIEvent) {
	if ev.Type != slackevents.CallbackEvent {
		return
	}
	var user, channel, text string
	switch in := ev.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if in == nil {
			return
		}
		user, channel, text = in.User, in.Channel, in.Text
	case *slackevents.MessageEvent:
		if in == nil || in.ChannelType != "im" || in.SubType != "" {
			return
		}
		user, channel, text = in.User, in.Channel, in.Text
	default:
		return
	}
	if user == "" || user == c.BotUserID() {
		return
	}

	msg := &bus.InboundMessage{
		Channel:  c.personality,
		SenderID: user,
		ChatID:   channel,
		TraceID:  uuid.NewString(),
		Content:  stripMentions(text),
		Source:   bus.SourceSlack,
	}
	if err := c.bus.PublishInbound(ctx, msg); err != nil {
		slog.Warn("Slack inbound dropped", "personality", c.personality, "channel", channel, "error", err)
	}
}

// History reads conversations.history and returns it oldest first.
func (c *SlackChannel) History(ctx context.Context, dest string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: dest,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("slack history %s: %w", dest, err)
	}

	me := c.BotUserID()
	out := make([]ChatMessage, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		out = append(out, ChatMessage{
			Author:    c.displayName(ctx, m.User, m.Username),
			Text:      stripMentions(m.Text),
			Timestamp: parseSlackTS(m.Timestamp),
			FromMe:    me != "" && m.User == me,
		})
	}
	return out, nil
}

// Members lists display names of active users in the workspace.
func (c *SlackChannel) Members(ctx context.Context, _ string) ([]string, error) {
	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack users.list: %w", err)
	}
	names := make([]string, 0, len(users))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range users {
		if u.Deleted {
			continue
		}
		name := userDisplayName(u)
		c.names[u.ID] = name
		names = append(names, name)
	}
	return names, nil
}

// Send posts text to dest, retrying rate-limited posts.
func (c *SlackChannel) Send(ctx context.Context, dest, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		_, _, err = c.api.PostMessageContext(ctx, dest, slack.MsgOptionText(text, false))
		var rle *slack.RateLimitedError
		if err == nil || !errors.As(err, &rle) {
			break
		}
		slog.Warn("Slack rate limited", "personality", c.personality, "channel", dest, "retry_after", rle.RetryAfter, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rle.RetryAfter):
		}
	}
	if err != nil {
		return fmt.Errorf("slack post %s: %w", dest, err)
	}
	return nil
}

func (c *SlackChannel) displayName(ctx context.Context, userID, fallback string) string {
	if userID == "" {
		if fallback != "" {
			return fallback
		}
		return "unknown"
	}
	c.mu.RLock()
	name, ok := c.names[userID]
	c.mu.RUnlock()
	if ok {
		return name
	}
	if _, err := c.Members(ctx, ""); err != nil {
		slog.Debug("Slack user lookup failed", "user", userID, "error", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.names[userID]; ok {
		return name
	}
	// Remember the miss so one unknown author does not list users every turn.
	c.names[userID] = userID
	return userID
}

func userDisplayName(u slack.User) string {
	for _, s := range []string{u.Profile.DisplayName, u.RealName, u.Name} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return u.ID
}

func stripMentions(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

func parseSlackTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9))
}
