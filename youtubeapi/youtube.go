// Package youtubeapi wraps Google OAuth2 client config and the YouTube Data
// API to poll the active broadcast's live chat. Messages are normalized into
// events and fed to the same dispatch queue as Twitch traffic.
package youtubeapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"chattercast/event"
)

// NewService builds a YouTube client from an API key (public data only).
func NewService(ctx context.Context, apiKey string, extra ...option.ClientOption) (*yt.Service, error) {
	if apiKey == "" {
		return nil, errors.New("missing youtube api key")
	}
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, extra...)
	return yt.NewService(ctx, opts...)
}

// NewAuthorizedService builds a YouTube client from OAuth credentials, needed
// for mine=true broadcast listings.
func NewAuthorizedService(ctx context.Context, clientID, clientSecret string, tok *oauth2.Token, scopes string) (*yt.Service, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("missing youtube oauth client credentials")
	}
	scopeList := []string{"https://www.googleapis.com/auth/youtube.readonly"}
	if scopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(scopes, ",", " ")
		if fields := strings.Fields(s); len(fields) > 0 {
			scopeList = fields
		}
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopeList,
	}
	return yt.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
}

// Producer polls the live chat of the channel's active broadcast and submits
// normalized events. The server's PollingIntervalMillis hint is honored; API
// errors back off for five seconds before the next attempt.
type Producer struct {
	Service    *yt.Service
	Normalizer *event.Normalizer
	Submit     func(ev event.Event) bool

	// MinInterval floors the poll cadence; defaults to one second.
	MinInterval time.Duration

	liveChatID string
	pageToken  string
	log        *slog.Logger
}

const (
	errorBackoff     = 5 * time.Second
	noBroadcastRetry = 30 * time.Second
)

// NewProducer returns a producer over svc.
func NewProducer(svc *yt.Service, normalizer *event.Normalizer, submit func(event.Event) bool) *Producer {
	return &Producer{
		Service:     svc,
		Normalizer:  normalizer,
		Submit:      submit,
		MinInterval: time.Second,
		log:         slog.Default().With(slog.String("component", "youtube")),
	}
}

// Run polls until ctx is cancelled. It never returns a non-nil error for
// transient API failures; those are logged and retried.
func (p *Producer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if p.liveChatID == "" {
			if !p.findLiveChat(ctx) {
				if !sleep(ctx, noBroadcastRetry) {
					return nil
				}
				continue
			}
		}
		wait, err := p.pollOnce(ctx)
		if err != nil {
			p.log.Warn("live chat poll failed", slog.Any("err", err))
			// The chat may have ended; rediscover the broadcast next round.
			p.liveChatID = ""
			p.pageToken = ""
			wait = errorBackoff
		}
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// findLiveChat resolves the active broadcast's live chat id.
func (p *Producer) findLiveChat(ctx context.Context) bool {
	resp, err := p.Service.LiveBroadcasts.List([]string{"snippet"}).
		Mine(true).
		BroadcastStatus("active").
		Context(ctx).
		Do()
	if err != nil {
		p.log.Warn("broadcast lookup failed", slog.Any("err", err))
		return false
	}
	for _, item := range resp.Items {
		if item.Snippet != nil && item.Snippet.LiveChatId != "" {
			p.liveChatID = item.Snippet.LiveChatId
			p.pageToken = ""
			p.log.Info("live chat found", slog.String("live_chat_id", p.liveChatID))
			return true
		}
	}
	p.log.Debug("no active broadcast")
	return false
}

func (p *Producer) pollOnce(ctx context.Context) (time.Duration, error) {
	call := p.Service.LiveChatMessages.List(p.liveChatID, []string{"snippet", "authorDetails"}).
		Context(ctx)
	if p.pageToken != "" {
		call = call.PageToken(p.pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return 0, err
	}
	p.pageToken = resp.NextPageToken
	for _, item := range resp.Items {
		if item.Snippet == nil || item.AuthorDetails == nil {
			continue
		}
		ev, ok := p.Normalizer.Normalize(event.PlatformYouTube, item.AuthorDetails.DisplayName, item.Snippet.DisplayMessage)
		if !ok {
			continue
		}
		if p.Submit != nil && !p.Submit(ev) {
			p.log.Warn("event dropped", slog.String("username", ev.Username))
		}
	}
	wait := time.Duration(resp.PollingIntervalMillis) * time.Millisecond
	if wait < p.MinInterval {
		wait = p.MinInterval
	}
	return wait, nil
}

// sleep waits for d or until ctx is cancelled; false means cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
