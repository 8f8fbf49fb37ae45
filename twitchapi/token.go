package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// tokenExpiryBuffer is how long before expiry a cached app token is treated as
// stale.
const tokenExpiryBuffer = 60 * time.Second

// TokenSource fetches and caches a Twitch app access (client credentials)
// token for Helix calls that don't need user scopes (user id resolution,
// stream status). IRC chat and subscription/follower checks require the bot's
// user token instead.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	tok, ok := ts.cached()
	ts.mu.RUnlock()
	if ok {
		return tok, nil
	}
	return ts.refresh(ctx)
}

// cached returns the current token when it is still comfortably valid.
// Callers must hold ts.mu.
func (ts *TokenSource) cached() (string, bool) {
	if ts.token == "" || time.Until(ts.expiresAt) <= tokenExpiryBuffer {
		return "", false
	}
	return ts.token, true
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	// Another caller may have refreshed while we waited for the write lock.
	if tok, ok := ts.cached(); ok {
		return tok, nil
	}
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}
	form := url.Values{}
	form.Set("client_id", ts.ClientID)
	form.Set("client_secret", ts.ClientSecret)
	form.Set("grant_type", "client_credentials")
	res, err := postTokenForm(ctx, ts.HTTPClient, form, "twitch token request failed")
	if err != nil {
		return "", err
	}
	if res.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	ts.token = res.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	return ts.token, nil
}
