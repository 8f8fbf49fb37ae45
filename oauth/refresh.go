// Package oauth provides proactive token refresh scheduling for the stored
// user credential. It performs jittered checks and refreshes when expiry falls
// within a configured window, so the transport rarely has to recover from a
// mid-session auth failure at all.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"chattercast/tokens"
)

// RefreshFunc performs the provider-specific refresh and returns the new
// credential.
type RefreshFunc func(ctx context.Context, refreshToken string) (tokens.Credential, error)

// StartRefresher launches a goroutine that periodically checks the stored
// credential and refreshes it before it expires.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store *tokens.Store, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Add per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			cred := store.Get()
			if cred.Refresh == "" {
				continue
			}
			// If still outside window skip quickly. A zero expiry means the
			// lifetime is unknown; refresh to learn it.
			if !cred.ExpiresAt.IsZero() && time.Until(cred.ExpiresAt) > window {
				continue
			}
			ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
			fresh, err := fn(ctx2, cred.Refresh)
			cancel()
			if err != nil {
				slog.Warn("token refresh failed", slog.Any("err", err))
				continue
			}
			if fresh.Refresh == "" {
				fresh.Refresh = cred.Refresh
			}
			if err := store.Set(fresh); err != nil {
				slog.Warn("token persist failed", slog.Any("err", err))
				continue
			}
			slog.Info("token refreshed ahead of expiry")
		}
	}()
}
