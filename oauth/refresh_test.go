package oauth

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"chattercast/tokens"
)

func newTestStore(t *testing.T, cred tokens.Credential) *tokens.Store {
	t.Helper()
	store, err := tokens.Open(tokens.FileStore{Path: filepath.Join(t.TempDir(), "cred.json")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Set(cred); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func TestRefresherSkipsHealthyToken(t *testing.T) {
	store := newTestStore(t, tokens.Credential{
		Access:    "access123",
		Refresh:   "refresh456",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	var refreshCalled atomic.Bool
	fn := func(ctx context.Context, refreshToken string) (tokens.Credential, error) {
		refreshCalled.Store(true)
		return tokens.Credential{Access: "new"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	StartRefresher(ctx, store, 20*time.Millisecond, 30*time.Minute, fn)
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)

	if refreshCalled.Load() {
		t.Error("refresh called for a token expiring in 1 hour with a 30 minute window")
	}
}

func TestRefresherRefreshesWithinWindow(t *testing.T) {
	store := newTestStore(t, tokens.Credential{
		Access:    "old-access",
		Refresh:   "old-refresh",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	})

	fn := func(ctx context.Context, refreshToken string) (tokens.Credential, error) {
		if refreshToken != "old-refresh" {
			t.Errorf("refresh token = %q", refreshToken)
		}
		return tokens.Credential{
			Access:    "new-access",
			Refresh:   "new-refresh",
			ExpiresAt: time.Now().Add(2 * time.Hour),
		}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartRefresher(ctx, store, 20*time.Millisecond, 15*time.Minute, fn)

	deadline := time.Now().Add(2 * time.Second)
	for store.Get().Access != "new-access" {
		if time.Now().After(deadline) {
			t.Fatal("credential never refreshed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := store.Get(); got.Refresh != "new-refresh" {
		t.Errorf("refresh token = %q, want rotated", got.Refresh)
	}
}

func TestRefresherKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	store := newTestStore(t, tokens.Credential{
		Access:    "old-access",
		Refresh:   "keep-me",
		ExpiresAt: time.Now().Add(time.Minute),
	})

	fn := func(ctx context.Context, refreshToken string) (tokens.Credential, error) {
		return tokens.Credential{Access: "new-access", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartRefresher(ctx, store, 20*time.Millisecond, 15*time.Minute, fn)

	deadline := time.Now().Add(2 * time.Second)
	for store.Get().Access != "new-access" {
		if time.Now().After(deadline) {
			t.Fatal("credential never refreshed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := store.Get(); got.Refresh != "keep-me" {
		t.Errorf("refresh token = %q, want preserved", got.Refresh)
	}
}

func TestRefresherSurvivesRefreshErrors(t *testing.T) {
	store := newTestStore(t, tokens.Credential{
		Access:    "old-access",
		Refresh:   "r",
		ExpiresAt: time.Now().Add(time.Minute),
	})

	var calls atomic.Int32
	fn := func(ctx context.Context, refreshToken string) (tokens.Credential, error) {
		if calls.Add(1) < 3 {
			return tokens.Credential{}, errors.New("transient")
		}
		return tokens.Credential{Access: "new-access", Refresh: "r", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartRefresher(ctx, store, 20*time.Millisecond, 15*time.Minute, fn)

	deadline := time.Now().Add(3 * time.Second)
	for store.Get().Access != "new-access" {
		if time.Now().After(deadline) {
			t.Fatal("refresher did not retry after errors")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
