// Package chat is the Twitch IRC transport. It turns IRC callbacks into
// normalized events for the dispatch pool, keeps the roster in sync with
// join/part traffic, thanks subscribers and raiders out loud, and forwards
// server notices to the session supervisor.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"chattercast/event"
	"chattercast/roster"
	"chattercast/telemetry"
	"chattercast/tts"
)

// NoticeHandler classifies server notices; it reports whether the notice was
// consumed (an auth failure under recovery).
type NoticeHandler interface {
	HandleNotice(ctx context.Context, text string) bool
}

// Transport owns the IRC connection. Run blocks until the context is
// cancelled; Restart tears the connection down and reconnects with a new
// token without dropping roster or vote state.
type Transport struct {
	Username   string
	Channel    string
	Normalizer *event.Normalizer
	Roster     *roster.Roster
	Narrator   tts.Narrator
	Notices    NoticeHandler
	Submit     func(ev event.Event) bool

	mu         sync.Mutex
	client     *twitch.Client
	token      string
	restarting atomic.Bool
}

// New returns a transport for the given bot account and channel. token is the
// current user access token, with or without the "oauth:" prefix.
func New(username, channel, token string) *Transport {
	return &Transport{
		Username: username,
		Channel:  channel,
		token:    ircToken(token),
	}
}

func ircToken(token string) string {
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

// Run connects and processes IRC traffic until ctx is cancelled. A Restart
// causes the inner connect loop to rebuild the client with the stored token.
func (t *Transport) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.disconnect()
	}()
	for {
		t.mu.Lock()
		client := twitch.NewClient(t.Username, t.token)
		t.client = client
		t.mu.Unlock()
		t.register(ctx, client)
		client.Join(t.Channel)

		slog.Info("connecting to twitch chat", slog.String("channel", t.Channel))
		err := client.Connect()
		if ctx.Err() != nil {
			return nil
		}
		if t.restarting.CompareAndSwap(true, false) {
			continue
		}
		if err != nil {
			return fmt.Errorf("twitch chat connect: %w", err)
		}
		return nil
	}
}

// Restart swaps in a fresh access token and reconnects. Called by the session
// supervisor after a successful credential refresh.
func (t *Transport) Restart(ctx context.Context, accessToken string) error {
	t.mu.Lock()
	t.token = ircToken(accessToken)
	t.mu.Unlock()
	t.restarting.Store(true)
	t.disconnect()
	return nil
}

func (t *Transport) disconnect() {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return
	}
	if err := client.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
		slog.Warn("twitch chat disconnect", slog.Any("err", err))
	}
}

// Say posts a line to the channel. Used as the dispatch Env reply func.
func (t *Transport) Say(_ context.Context, text string) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return errors.New("chat transport not connected")
	}
	client.Say(t.Channel, text)
	return nil
}

func (t *Transport) register(ctx context.Context, client *twitch.Client) {
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		t.handlePrivateMessage(ctx, msg.User.Name, msg.Message)
	})
	client.OnUserJoinMessage(func(msg twitch.UserJoinMessage) {
		t.handleJoin(ctx, msg.User)
	})
	client.OnUserPartMessage(func(msg twitch.UserPartMessage) {
		t.handlePart(msg.User)
	})
	client.OnUserNoticeMessage(func(msg twitch.UserNoticeMessage) {
		t.handleUserNotice(ctx, msg.User.Name, msg.MsgID)
	})
	client.OnNoticeMessage(func(msg twitch.NoticeMessage) {
		t.handleNotice(ctx, msg.Message)
	})
}

func (t *Transport) handlePrivateMessage(ctx context.Context, username, text string) {
	if t.Normalizer.Ignores(username) {
		return
	}
	if t.Roster != nil {
		// Enrichment may hit the network; never block the IRC read loop.
		go func() {
			t.Roster.Upsert(ctx, username)
			telemetry.SetRosterSize(t.Roster.Len())
		}()
	}
	ev, ok := t.Normalizer.Normalize(event.PlatformTwitch, username, text)
	if !ok {
		return
	}
	if t.Submit != nil && !t.Submit(ev) {
		slog.Warn("event dropped", slog.String("username", ev.Username))
	}
}

func (t *Transport) handleJoin(ctx context.Context, username string) {
	if t.Roster == nil || t.Normalizer.Ignores(username) {
		return
	}
	go func() {
		t.Roster.Upsert(ctx, username)
		telemetry.SetRosterSize(t.Roster.Len())
	}()
}

func (t *Transport) handlePart(username string) {
	if t.Roster == nil {
		return
	}
	t.Roster.Remove(username)
	telemetry.SetRosterSize(t.Roster.Len())
}

// handleUserNotice thanks subscribers, gifters and raiders out loud and
// refreshes the viewer's enrichment so a fresh sub is reflected immediately.
func (t *Transport) handleUserNotice(ctx context.Context, username, msgID string) {
	line := thankYouLine(username, msgID)
	if line == "" {
		return
	}
	if t.Roster != nil {
		go t.Roster.Refresh(ctx, username)
	}
	if t.Narrator != nil {
		go func() {
			if _, err := t.Narrator.Speak(ctx, line); err != nil {
				slog.Warn("thank-you narration failed", slog.Any("err", err))
			}
		}()
	}
	if err := t.Say(ctx, line); err != nil {
		slog.Warn("thank-you reply failed", slog.Any("err", err))
	}
}

func thankYouLine(username, msgID string) string {
	switch msgID {
	case "sub":
		return fmt.Sprintf("Thank you %s for subscribing!", username)
	case "resub":
		return fmt.Sprintf("Thank you %s for resubscribing!", username)
	case "subgift":
		return fmt.Sprintf("Thank you %s for gifting a sub!", username)
	case "submysterygift":
		return fmt.Sprintf("Thank you %s for the gift bomb!", username)
	case "giftpaidupgrade", "anongiftpaidupgrade":
		return fmt.Sprintf("Thank you %s for continuing your gifted sub!", username)
	case "raid":
		return fmt.Sprintf("Welcome raiders! Thank you %s for the raid!", username)
	case "bitsbadgetier":
		return fmt.Sprintf("Congrats %s on the new bits badge!", username)
	default:
		return ""
	}
}

func (t *Transport) handleNotice(ctx context.Context, text string) {
	if t.Notices != nil && t.Notices.HandleNotice(ctx, text) {
		return
	}
	slog.Info("twitch chat notice", slog.String("notice", text))
}
