// Package event defines the canonical chat event shape and the normalizer that
// adapts platform payloads (Twitch IRC push, YouTube poll) into it. Every
// inbound message crosses this boundary exactly once before dispatch.
package event

import (
	"strings"
	"time"
)

// Platform identifies the origin of a chat event.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
)

// Event is the canonical unit of work consumed by the dispatcher.
// Message is lowercased for matching; Display keeps the original casing for
// replies and narration. Immutable once constructed.
type Event struct {
	Platform   Platform
	Username   string
	Message    string
	Display    string
	ReceivedAt time.Time
}

// Normalizer filters and converts raw platform messages into Events.
// It drops the bot's own messages and messages from known system accounts.
type Normalizer struct {
	botUsername string
	ignored     map[string]struct{}
}

// Default system accounts that post automated chat noise.
var defaultIgnored = []string{"own3d", "soundalerts"}

// NewNormalizer returns a normalizer that drops botUsername and any extra
// ignored accounts (all matched case-insensitively).
func NewNormalizer(botUsername string, extraIgnored ...string) *Normalizer {
	ignored := make(map[string]struct{}, len(defaultIgnored)+len(extraIgnored))
	for _, u := range defaultIgnored {
		ignored[u] = struct{}{}
	}
	for _, u := range extraIgnored {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			ignored[u] = struct{}{}
		}
	}
	return &Normalizer{botUsername: strings.ToLower(botUsername), ignored: ignored}
}

// Normalize converts a raw platform message into an Event. The second return
// is false when the event should be dropped (bot identity, system account, or
// empty payload). Never blocks.
func (n *Normalizer) Normalize(platform Platform, username, text string) (Event, bool) {
	user := strings.ToLower(strings.TrimSpace(username))
	if user == "" || strings.TrimSpace(text) == "" {
		return Event{}, false
	}
	if user == n.botUsername {
		return Event{}, false
	}
	if _, skip := n.ignored[user]; skip {
		return Event{}, false
	}
	return Event{
		Platform:   platform,
		Username:   user,
		Message:    strings.ToLower(text),
		Display:    text,
		ReceivedAt: time.Now().UTC(),
	}, true
}

// Ignores reports whether the normalizer would drop messages from username.
// Used by the transport to skip roster churn for system accounts.
func (n *Normalizer) Ignores(username string) bool {
	user := strings.ToLower(strings.TrimSpace(username))
	if user == n.botUsername {
		return true
	}
	_, skip := n.ignored[user]
	return skip
}
