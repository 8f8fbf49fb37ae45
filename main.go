// Command chattercast runs the chat event dispatch engine for a dual-platform
// (Twitch + YouTube) stream chat. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the stored user credential and builds the Helix client.
//   - Starts the Twitch IRC transport, the YouTube live-chat poller, and the
//     dispatch worker pool feeding command handlers, votes, and narration.
//   - Supervises transport auth failures with automatic credential refresh.
//   - Exposes a minimal HTTP server with /healthz, /status, /metrics, /overlay.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chattercast/chat"
	"chattercast/commands"
	"chattercast/config"
	"chattercast/cooldown"
	"chattercast/crypto"
	"chattercast/dispatch"
	"chattercast/event"
	"chattercast/oauth"
	"chattercast/overlay"
	"chattercast/roster"
	"chattercast/server"
	"chattercast/session"
	"chattercast/sound"
	"chattercast/telemetry"
	"chattercast/tokens"
	"chattercast/tts"
	"chattercast/twitchapi"
	"chattercast/vote"
	"chattercast/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("chattercast", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Credential store, optionally sealed at rest.
	var enc crypto.Encryptor
	if cfg.EncryptionKey != "" {
		enc, err = crypto.NewAESEncryptor(cfg.EncryptionKey)
		if err != nil {
			slog.Error("invalid ENCRYPTION_KEY", slog.Any("err", err))
			os.Exit(1)
		}
	}
	store, err := tokens.Open(tokens.FileStore{Path: cfg.TokenFile, Encryptor: enc})
	if err != nil {
		slog.Error("failed to open credential store", slog.Any("err", err))
		os.Exit(1)
	}
	if store.Get().Access == "" {
		url, err := twitchapi.BuildAuthorizeURL(cfg.TwitchClientID, cfg.TwitchRedirectURI, cfg.TwitchScopes, "")
		if err == nil {
			slog.Error("no stored credential; authorize the bot account first", slog.String("authorize_url", url))
		} else {
			slog.Error("no stored credential and no redirect URI configured")
		}
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Helix client authenticated with the bot's user token (subscription and
	// follower checks require user scopes, not an app token).
	helix := &twitchapi.HelixClient{
		Tokens: twitchapi.TokenProviderFunc(func(context.Context) (string, error) {
			return store.Get().Bare(), nil
		}),
		ClientID: cfg.TwitchClientID,
	}
	resolveCtx, cancelResolve := context.WithTimeout(ctx, 10*time.Second)
	if err := helix.ResolveBroadcaster(resolveCtx, cfg.TwitchChannel); err != nil {
		slog.Warn("broadcaster resolution failed; enrichment and polls degraded", slog.Any("err", err))
	}
	cancelResolve()

	// Engine state.
	viewers := roster.New(helix)
	votes := vote.NewSession()
	votes.SetDuration(cfg.VoteDuration)
	ledger := cooldown.NewLedger()
	hub := overlay.NewHub()
	normalizer := event.NewNormalizer(cfg.TwitchBotUsername)

	var narrator tts.Narrator = tts.Logged{}
	if cfg.TTSBaseURL != "" {
		narrator = &tts.HTTPClient{BaseURL: cfg.TTSBaseURL}
	}
	board := sound.NewBoard(nil)
	board.Register(cfg.TriggerSound, filepath.Join(cfg.SoundDir, cfg.TriggerSound+".mp3"), time.Minute)

	moderators := make(map[string]struct{}, len(cfg.TwitchModerators))
	for _, m := range cfg.TwitchModerators {
		moderators[m] = struct{}{}
	}

	transport := chat.New(cfg.TwitchBotUsername, cfg.TwitchChannel, store.Get().Access)
	env := &dispatch.Env{
		Roster:    viewers,
		Votes:     votes,
		Cooldowns: ledger,
		Helix:     helix,
		Narrator:  narrator,
		Sounds:    board,
		Overlay:   hub,
		Registry:  dispatch.NewRegistry(),
		Channel:   cfg.TwitchChannel,
		Reply:     transport.Say,
		IsModerator: func(username string) bool {
			_, ok := moderators[strings.ToLower(username)]
			return ok
		},
	}
	for _, cmd := range []dispatch.Command{
		commands.Help{},
		commands.Shout{},
		commands.Raffle{},
		commands.Lurk{},
		commands.Subs{},
		commands.Discord{InviteURL: cfg.DiscordInvite},
		commands.Hug{},
		commands.Braincells{},
		commands.Uptime{},
		commands.DadJoke{},
		commands.Socials{Links: cfg.SocialLinks},
		commands.Vote{},
	} {
		env.Registry.Register(cmd)
	}

	dispatcher := dispatch.NewDispatcher(env)
	dispatcher.TriggerPhrase = cfg.TriggerPhrase
	dispatcher.TriggerCue = cfg.TriggerSound
	pool := dispatch.NewPool(dispatcher, cfg.WorkerCount, cfg.QueueSize)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(poolDone)
	}()

	// Twitch transport under auth-failure supervision.
	supervisor := session.NewSupervisor(store,
		func(rctx context.Context, refreshToken string) (tokens.Credential, error) {
			res, err := twitchapi.RefreshToken(rctx, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
			if err != nil {
				return tokens.Credential{}, err
			}
			return tokens.Credential{
				Access:    res.AccessToken,
				Refresh:   res.RefreshToken,
				ExpiresAt: twitchapi.ComputeExpiry(res.ExpiresIn),
			}, nil
		},
		transport,
		func(err error) {
			slog.Error("unrecoverable auth failure, shutting down", slog.Any("err", err))
			stop()
		},
	)
	transport.Normalizer = normalizer
	transport.Roster = viewers
	transport.Narrator = narrator
	transport.Notices = supervisor
	transport.Submit = pool.Submit
	go func() {
		if err := transport.Run(ctx); err != nil {
			slog.Error("twitch transport exited", slog.Any("err", err))
			stop()
		}
	}()

	// Proactive token refresh so mid-session auth failures stay rare.
	oauth.StartRefresher(ctx, store, 5*time.Minute, 15*time.Minute, func(rctx context.Context, refreshToken string) (tokens.Credential, error) {
		res, err := twitchapi.RefreshToken(rctx, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
		if err != nil {
			return tokens.Credential{}, err
		}
		return tokens.Credential{
			Access:    res.AccessToken,
			Refresh:   res.RefreshToken,
			ExpiresAt: twitchapi.ComputeExpiry(res.ExpiresIn),
		}, nil
	})

	// YouTube live chat poller (optional).
	if cfg.YTAPIKey != "" {
		svc, err := youtubeapi.NewService(ctx, cfg.YTAPIKey)
		if err != nil {
			slog.Error("youtube service init failed", slog.Any("err", err))
		} else {
			producer := youtubeapi.NewProducer(svc, normalizer, pool.Submit)
			go func() {
				if err := producer.Run(ctx); err != nil {
					slog.Error("youtube poller exited", slog.Any("err", err))
				}
			}()
		}
	} else {
		slog.Info("youtube polling disabled (YT_API_KEY not set)")
	}

	// Finalize expired votes even when chat goes quiet.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if res, done := votes.CheckExpired(now); done {
					env.AnnounceResults(ctx, res)
				}
			}
		}
	}()

	// HTTP server (health/status/metrics/overlay)
	go func() {
		deps := server.Deps{
			Roster:    viewers,
			Votes:     votes,
			Pool:      pool,
			Overlay:   hub,
			StartedAt: time.Now(),
		}
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal, then let the queue drain.
	<-ctx.Done()
	slog.Info("shutting down")
	<-poolDone
}
