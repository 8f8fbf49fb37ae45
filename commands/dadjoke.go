package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"chattercast/dispatch"
	"chattercast/event"
)

const defaultJokeURL = "https://v2.jokeapi.dev"

// DadJoke fetches a one-liner from JokeAPI, posts it, and narrates it.
type DadJoke struct {
	BaseURL string
	Client  *http.Client
}

func (DadJoke) Name() string            { return "dadjoke" }
func (DadJoke) Cooldown() time.Duration { return 100 * time.Second }
func (DadJoke) Help() string            { return "!dadjoke tells a terrible joke" }

func (d DadJoke) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	joke, err := d.fetch(ctx)
	if err != nil {
		env.Send(ctx, "The joke machine is broken. That's the real joke")
		return err
	}
	env.Send(ctx, joke)
	if env.Narrator != nil {
		if _, err := env.Narrator.Speak(ctx, joke); err != nil {
			slog.Warn("joke narration failed", slog.Any("err", err))
		}
	}
	return nil
}

func (d DadJoke) fetch(ctx context.Context) (string, error) {
	base := d.BaseURL
	if base == "" {
		base = defaultJokeURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/joke/Any?type=single&safe-mode", nil)
	if err != nil {
		return "", err
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("joke api: %s", resp.Status)
	}
	var body struct {
		Error bool   `json:"error"`
		Joke  string `json:"joke"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Error || body.Joke == "" {
		return "", fmt.Errorf("joke api returned no joke")
	}
	return body.Joke, nil
}
