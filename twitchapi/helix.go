// Package twitchapi contains the Helix client used for viewer enrichment
// (identity, follower and subscription status), broadcaster resolution,
// stream uptime, subscriber listings, and native poll creation, plus the
// OAuth helpers for app tokens and user-token refresh.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"chattercast/roster"
)

// TokenProvider supplies a bearer token for Helix calls. Both the app
// TokenSource and the stored user credential satisfy it.
type TokenProvider interface {
	Get(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

func (f TokenProviderFunc) Get(ctx context.Context) (string, error) { return f(ctx) }

// HelixClient wraps the Helix endpoints the engine needs. BroadcasterID must
// be resolved (ResolveBroadcaster) before follower/subscription/poll calls.
type HelixClient struct {
	Tokens        TokenProvider
	ClientID      string
	BroadcasterID string
	BaseURL       string // defaults to the public Helix endpoint
	HTTPClient    *http.Client
}

const defaultHelixURL = "https://api.twitch.tv/helix"

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return defaultHelixURL
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) do(ctx context.Context, method, path string, query map[string]string, body, out any) (int, error) {
	tok, err := hc.Tokens.Get(ctx)
	if err != nil {
		return 0, err
	}
	var payload *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(b)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, hc.base()+path, payload)
	if err != nil {
		return 0, err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.http().Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	status, err := hc.do(ctx, http.MethodGet, "/users", map[string]string{"login": login}, nil, &body)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || len(body.Data) == 0 {
		return "", fmt.Errorf("user %q not found (status %d)", login, status)
	}
	return body.Data[0].ID, nil
}

// ResolveBroadcaster looks up the channel owner's user ID and stores it for
// subsequent follower/subscription/poll calls.
func (hc *HelixClient) ResolveBroadcaster(ctx context.Context, channelLogin string) error {
	id, err := hc.GetUserID(ctx, channelLogin)
	if err != nil {
		return fmt.Errorf("resolve broadcaster: %w", err)
	}
	hc.BroadcasterID = id
	return nil
}

// IsFollower reports whether userID follows the broadcaster.
func (hc *HelixClient) IsFollower(ctx context.Context, userID string) (bool, error) {
	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	status, err := hc.do(ctx, http.MethodGet, "/channels/followers",
		map[string]string{"broadcaster_id": hc.BroadcasterID, "user_id": userID}, nil, &body)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("followers check failed: status %d", status)
	}
	return len(body.Data) > 0, nil
}

// IsSubscriber reports whether userID is subscribed to the broadcaster.
// Helix answers 404 for non-subscribers, which is a negative result rather
// than an error.
func (hc *HelixClient) IsSubscriber(ctx context.Context, userID string) (bool, error) {
	status, err := hc.do(ctx, http.MethodGet, "/subscriptions/user",
		map[string]string{"broadcaster_id": hc.BroadcasterID, "user_id": userID}, nil, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("subscription check failed: status %d", status)
	}
}

// LookupUser performs the full enrichment lookup for the roster. Follower and
// subscription failures degrade to false rather than failing the whole lookup.
func (hc *HelixClient) LookupUser(ctx context.Context, username string) (roster.Identity, error) {
	userID, err := hc.GetUserID(ctx, username)
	if err != nil {
		return roster.Identity{}, err
	}
	id := roster.Identity{UserID: userID}
	if following, err := hc.IsFollower(ctx, userID); err == nil {
		id.Following = following
	} else {
		slog.Warn("follower check failed", slog.String("username", username), slog.Any("err", err))
	}
	if subscribed, err := hc.IsSubscriber(ctx, userID); err == nil {
		id.Subscribed = subscribed
	} else {
		slog.Warn("subscription check failed", slog.String("username", username), slog.Any("err", err))
	}
	return id, nil
}

// ListSubscribers returns the display names of the broadcaster's subscribers.
func (hc *HelixClient) ListSubscribers(ctx context.Context) ([]string, error) {
	var body struct {
		Data []struct {
			UserName string `json:"user_name"`
		} `json:"data"`
	}
	status, err := hc.do(ctx, http.MethodGet, "/subscriptions",
		map[string]string{"broadcaster_id": hc.BroadcasterID}, nil, &body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("subscriptions list failed: status %d", status)
	}
	out := make([]string, 0, len(body.Data))
	for _, s := range body.Data {
		out = append(out, s.UserName)
	}
	return out, nil
}

// GetStreamStartedAt returns the live stream's start time, or ok=false when
// the channel is offline.
func (hc *HelixClient) GetStreamStartedAt(ctx context.Context) (time.Time, bool, error) {
	var body struct {
		Data []struct {
			StartedAt time.Time `json:"started_at"`
		} `json:"data"`
	}
	status, err := hc.do(ctx, http.MethodGet, "/streams",
		map[string]string{"user_id": hc.BroadcasterID}, nil, &body)
	if err != nil {
		return time.Time{}, false, err
	}
	if status != http.StatusOK {
		return time.Time{}, false, fmt.Errorf("streams lookup failed: status %d", status)
	}
	if len(body.Data) == 0 {
		return time.Time{}, false, nil
	}
	return body.Data[0].StartedAt, true, nil
}

// CreatePoll creates a native channel poll. Used as the vote broadcast
// fallback when no overlay consumer is connected.
func (hc *HelixClient) CreatePoll(ctx context.Context, question string, options []string, duration time.Duration) error {
	type choice struct {
		Title string `json:"title"`
	}
	choices := make([]choice, 0, len(options))
	for _, o := range options {
		choices = append(choices, choice{Title: o})
	}
	payload := map[string]any{
		"broadcaster_id": hc.BroadcasterID,
		"title":          question,
		"choices":        choices,
		"duration":       int(duration.Seconds()),
	}
	status, err := hc.do(ctx, http.MethodPost, "/polls", nil, payload, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("create poll failed: status %d", status)
	}
	return nil
}
