package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KafClaw/chatterbox/internal/bus"
	"github.com/KafClaw/chatterbox/internal/config"
)

type fakeSlack struct {
	posts       atomic.Int32
	rateLimited atomic.Int32
	lastText    atomic.Value
	lastChannel atomic.Value
}

func newFakeSlack(t *testing.T, f *fakeSlack) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth.test", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"user_id":"UBOT","user":"socrates","team_id":"T1"}`))
	})
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		// Newest first, as Slack returns it.
		_, _ = w.Write([]byte(`{"ok":true,"has_more":false,"messages":[
			{"type":"message","user":"UBOT","text":"I disagree","ts":"1700000003.000000"},
			{"type":"message","user":"U2","text":"<@UBOT> what is virtue?","ts":"1700000002.000000"},
			{"type":"message","user":"U1","text":"hello all","ts":"1700000001.500000"}
		]}`))
	})
	mux.HandleFunc("/users.list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"members":[
			{"id":"U1","name":"alice","real_name":"Alice A","profile":{"display_name":"Alice"}},
			{"id":"U2","name":"bob","real_name":"Bob B","profile":{"display_name":""}},
			{"id":"U3","name":"gone","deleted":true,"profile":{"display_name":"Gone"}},
			{"id":"UBOT","name":"socrates","profile":{"display_name":"Socrates"}}
		],"response_metadata":{"next_cursor":""}}`))
	})
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		if f.rateLimited.Load() > 0 {
			f.rateLimited.Add(-1)
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = r.ParseForm()
		f.lastText.Store(r.FormValue("text"))
		f.lastChannel.Store(r.FormValue("channel"))
		f.posts.Add(1)
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1700000004.000000"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSlack(t *testing.T, srv *httptest.Server, b *bus.MessageBus) *SlackChannel {
	t.Helper()
	c, err := NewSlackChannel("Socrates", config.SlackBotConfig{BotToken: "xoxb-test", AppToken: "xapp-test"}, srv.URL, b, srv.Client())
	require.NoError(t, err)
	require.NoError(t, c.Identify(context.Background()))
	return c
}

func TestNewSlackChannelRequiresToken(t *testing.T) {
	_, err := NewSlackChannel("X", config.SlackBotConfig{}, "", bus.NewMessageBus(), nil)
	assert.ErrorContains(t, err, "missing bot token")
}

func TestSlackHistoryOldestFirst(t *testing.T) {
	srv := newFakeSlack(t, &fakeSlack{})
	c := newTestSlack(t, srv, bus.NewMessageBus())
	assert.Equal(t, "UBOT", c.BotUserID())

	msgs, err := c.History(context.Background(), "C1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "Alice", msgs[0].Author)
	assert.Equal(t, "hello all", msgs[0].Text)
	assert.Equal(t, time.Unix(1700000001, 500000000).Unix(), msgs[0].Timestamp.Unix())
	assert.False(t, msgs[0].FromMe)

	assert.Equal(t, "Bob B", msgs[1].Author, "falls back to real name")
	assert.Equal(t, "what is virtue?", msgs[1].Text, "mentions are stripped")

	assert.Equal(t, "Socrates", msgs[2].Author)
	assert.True(t, msgs[2].FromMe)
}

func TestSlackMembersSkipsDeleted(t *testing.T) {
	srv := newFakeSlack(t, &fakeSlack{})
	c := newTestSlack(t, srv, bus.NewMessageBus())

	names, err := c.Members(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob B", "Socrates"}, names)
}

func TestSlackSend(t *testing.T) {
	f := &fakeSlack{}
	srv := newFakeSlack(t, f)
	c := newTestSlack(t, srv, bus.NewMessageBus())

	require.NoError(t, c.Send(context.Background(), "C1", ""))
	assert.Equal(t, int32(0), f.posts.Load(), "empty text is a no-op")

	require.NoError(t, c.Send(context.Background(), "C1", "Know thyself."))
	assert.Equal(t, int32(1), f.posts.Load())
	assert.Equal(t, "Know thyself.", f.lastText.Load())
	assert.Equal(t, "C1", f.lastChannel.Load())
}

func TestSlackSendRetriesRateLimit(t *testing.T) {
	f := &fakeSlack{}
	f.rateLimited.Store(2)
	srv := newFakeSlack(t, f)
	c := newTestSlack(t, srv, bus.NewMessageBus())

	require.NoError(t, c.Send(context.Background(), "C1", "eventually"))
	assert.Equal(t, int32(1), f.posts.Load())
}

func TestSlackSendGivesUpAfterAttempts(t *testing.T) {
	f := &fakeSlack{}
	f.rateLimited.Store(sendAttempts)
	srv := newFakeSlack(t, f)
	c := newTestSlack(t, srv, bus.NewMessageBus())

	err := c.Send(context.Background(), "C1", "never")
	assert.ErrorContains(t, err, "slack post C1")
	assert.Equal(t, int32(0), f.posts.Load())
}

func TestSlackHandleEvent(t *testing.T) {
	srv := newFakeSlack(t, &fakeSlack{})
	b := bus.NewMessageBus()
	c := newTestSlack(t, srv, b)
	ctx := context.Background()

	callback := func(data any) slackevents.EventsAPIEvent {
		return slackevents.EventsAPIEvent{
			Type:       slackevents.CallbackEvent,
			InnerEvent: slackevents.EventsAPIInnerEvent{Data: data},
		}
	}

	c.handleEvent(ctx, callback(&slackevents.AppMentionEvent{User: "U1", Channel: "C1", Text: "<@UBOT> hi there"}))
	c.handleEvent(ctx, callback(&slackevents.AppMentionEvent{User: "UBOT", Channel: "C1", Text: "talking to myself"}))
	c.handleEvent(ctx, callback(&slackevents.MessageEvent{User: "U2", Channel: "C2", ChannelType: "channel", Text: "<@UBOT> dup"}))
	c.handleEvent(ctx, callback(&slackevents.MessageEvent{User: "U2", Channel: "D1", ChannelType: "im", Text: "psst"}))
	c.handleEvent(ctx, slackevents.EventsAPIEvent{Type: slackevents.URLVerification})

	require.Equal(t, 2, b.InboundSize())

	first, err := b.ConsumeInbound(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Socrates", first.Channel)
	assert.Equal(t, "C1", first.ChatID)
	assert.Equal(t, "hi there", first.Content)
	assert.Equal(t, bus.SourceSlack, first.Source)
	assert.NotEmpty(t, first.TraceID)

	second, err := b.ConsumeInbound(ctx)
	require.NoError(t, err)
	assert.Equal(t, "D1", second.ChatID)
}

func TestStripMentions(t *testing.T) {
	assert.Equal(t, "hi", stripMentions("<@U123> hi"))
	assert.Equal(t, "ask  please", stripMentions("ask <@U1|alice> please"))
	assert.Equal(t, "no mentions", stripMentions("no mentions"))
}
