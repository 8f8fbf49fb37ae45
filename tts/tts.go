// Package tts defines the narration sink contract. Rendering and playback
// live outside this process; the engine only needs to hand text over and
// learn roughly how long playback will take.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Narrator is the narration collaborator. Speak renders text at normal volume,
// Shout louder. Both return the estimated playback duration so callers can
// pace follow-up audio.
type Narrator interface {
	Speak(ctx context.Context, text string) (time.Duration, error)
	Shout(ctx context.Context, text string) (time.Duration, error)
}

// Logged is a Narrator that only logs, used when no renderer is configured.
type Logged struct{}

func (Logged) Speak(_ context.Context, text string) (time.Duration, error) {
	slog.Info("tts speak", slog.String("text", text))
	return estimate(text), nil
}

func (Logged) Shout(_ context.Context, text string) (time.Duration, error) {
	slog.Info("tts shout", slog.String("text", text))
	return estimate(text), nil
}

// estimate approximates playback time from word count (~150 wpm).
func estimate(text string) time.Duration {
	words := len(strings.Fields(text))
	return time.Duration(words) * 400 * time.Millisecond
}

// HTTPClient speaks through a local renderer daemon exposing POST /speak and
// POST /shout with a text form field.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

func (c *HTTPClient) http() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *HTTPClient) post(ctx context.Context, path, text string) (time.Duration, error) {
	form := url.Values{}
	form.Set("text", text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http().Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tts renderer: %s", resp.Status)
	}
	var ms int64
	if _, err := fmt.Fscan(resp.Body, &ms); err != nil {
		// Renderer did not report a duration; fall back to the estimate.
		return estimate(text), nil
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (c *HTTPClient) Speak(ctx context.Context, text string) (time.Duration, error) {
	return c.post(ctx, "/speak", text)
}

func (c *HTTPClient) Shout(ctx context.Context, text string) (time.Duration, error) {
	return c.post(ctx, "/shout", text)
}
