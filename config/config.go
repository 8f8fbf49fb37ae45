// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (e.g., Twitch chat), use ValidateChatReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Twitch
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURI  string
	TwitchScopes       string
	TwitchModerators   []string

	// Credential storage
	TokenFile     string
	EncryptionKey string

	// Dispatch
	TriggerPhrase string
	TriggerSound  string
	WorkerCount   int
	QueueSize     int
	VoteDuration  time.Duration

	// Narration / sound
	TTSBaseURL string
	SoundDir   string

	// Community links
	DiscordInvite string
	SocialLinks   string

	// YouTube
	YTAPIKey       string
	YTClientID     string
	YTClientSecret string
	YTScopes       string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use ValidateChatReady() when you require the chat transport. Missing optional variables disable
// features (e.g., YouTube polling, narration).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		// default scopes for chat bot
		cfg.TwitchScopes = "chat:read chat:edit channel:read:subscriptions moderator:read:followers channel:manage:polls"
	}
	if v := os.Getenv("TWITCH_MODERATORS"); v != "" {
		for _, m := range strings.Split(v, ",") {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				cfg.TwitchModerators = append(cfg.TwitchModerators, m)
			}
		}
	}

	cfg.TokenFile = os.Getenv("TOKEN_FILE")
	if cfg.TokenFile == "" {
		cfg.TokenFile = "data/credential.json"
	}
	cfg.EncryptionKey = os.Getenv("ENCRYPTION_KEY")

	cfg.TriggerPhrase = strings.ToLower(os.Getenv("TRIGGER_PHRASE"))
	if cfg.TriggerPhrase == "" {
		cfg.TriggerPhrase = "get out"
	}
	cfg.TriggerSound = os.Getenv("TRIGGER_SOUND")
	if cfg.TriggerSound == "" {
		cfg.TriggerSound = "door"
	}

	var err error
	if cfg.WorkerCount, err = intEnv("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = intEnv("QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if v := os.Getenv("VOTE_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid VOTE_DURATION: %w", err)
		}
		cfg.VoteDuration = d
	} else {
		cfg.VoteDuration = 60 * time.Second
	}

	cfg.TTSBaseURL = os.Getenv("TTS_BASE_URL")
	cfg.SoundDir = os.Getenv("SOUND_DIR")
	if cfg.SoundDir == "" {
		cfg.SoundDir = "sounds"
	}

	cfg.DiscordInvite = os.Getenv("DISCORD_INVITE")
	cfg.SocialLinks = os.Getenv("SOCIAL_LINKS")

	cfg.YTAPIKey = os.Getenv("YT_API_KEY")
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTScopes = os.Getenv("YT_SCOPES")
	if cfg.YTScopes == "" {
		cfg.YTScopes = "https://www.googleapis.com/auth/youtube.readonly"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

// ValidateChatReady checks required fields when the Twitch transport is enabled.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" || c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET")
	}
	return nil
}
