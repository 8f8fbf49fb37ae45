package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chattercast/tokens"
)

type fakeTransport struct {
	restarts atomic.Int32
	lastTok  atomic.Value
	err      error
}

func (f *fakeTransport) Restart(ctx context.Context, accessToken string) error {
	f.restarts.Add(1)
	f.lastTok.Store(accessToken)
	return f.err
}

func newTestStore(t *testing.T, cred tokens.Credential) *tokens.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credential.json")
	store, err := tokens.Open(tokens.FileStore{Path: path})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Set(cred); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func TestIsAuthFailure(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Login unsuccessful", true},
		{"Login authentication failed", true},
		{"Improperly formatted auth", true},
		{"Invalid NICK", true},
		{"Now hosting somechannel", false},
		{"This room is now in slow mode", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsAuthFailure(tc.text); got != tc.want {
			t.Errorf("IsAuthFailure(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestConcurrentFailuresRecoverOnce(t *testing.T) {
	store := newTestStore(t, tokens.Credential{Access: "stale", Refresh: "refresh-1"})
	transport := &fakeTransport{}
	var reauths atomic.Int32
	sup := NewSupervisor(store,
		func(ctx context.Context, refreshToken string) (tokens.Credential, error) {
			reauths.Add(1)
			if refreshToken != "refresh-1" {
				t.Errorf("refresh token = %q", refreshToken)
			}
			time.Sleep(20 * time.Millisecond) // hold recovery open so later notices overlap
			return tokens.Credential{Access: "fresh", Refresh: "refresh-2"}, nil
		},
		transport,
		func(err error) { t.Errorf("unexpected shutdown: %v", err) },
	)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !sup.HandleNotice(context.Background(), "Login authentication failed") {
				t.Error("auth failure notice not recognized")
			}
		}()
	}
	wg.Wait()
	sup.Wait()

	if got := reauths.Load(); got != 1 {
		t.Errorf("reauth attempts = %d, want 1", got)
	}
	if got := transport.restarts.Load(); got != 1 {
		t.Errorf("transport restarts = %d, want 1", got)
	}
	if tok := transport.lastTok.Load(); tok != "fresh" {
		t.Errorf("restart token = %v, want fresh", tok)
	}
	if cred := store.Get(); cred.Access != "fresh" || cred.Refresh != "refresh-2" {
		t.Errorf("stored credential = %+v, not rotated", cred)
	}
}

func TestRecoveryRearmsAfterSuccess(t *testing.T) {
	store := newTestStore(t, tokens.Credential{Access: "stale", Refresh: "r"})
	transport := &fakeTransport{}
	var reauths atomic.Int32
	sup := NewSupervisor(store,
		func(ctx context.Context, refreshToken string) (tokens.Credential, error) {
			reauths.Add(1)
			return tokens.Credential{Access: "fresh", Refresh: "r"}, nil
		},
		transport, nil,
	)

	sup.HandleNotice(context.Background(), "login unsuccessful")
	sup.Wait()
	sup.HandleNotice(context.Background(), "login unsuccessful")
	sup.Wait()

	if got := reauths.Load(); got != 2 {
		t.Errorf("reauth attempts = %d, want 2 across separate failures", got)
	}
}

func TestWaitSafeDuringRecovery(t *testing.T) {
	store := newTestStore(t, tokens.Credential{Access: "stale", Refresh: "r"})
	sup := NewSupervisor(store,
		func(ctx context.Context, refreshToken string) (tokens.Credential, error) {
			time.Sleep(10 * time.Millisecond)
			return tokens.Credential{Access: "fresh", Refresh: "r"}, nil
		},
		&fakeTransport{}, nil,
	)

	// Waiters race the recovery kickoff; all must return.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.Wait()
		}()
	}
	sup.HandleNotice(context.Background(), "login unsuccessful")
	wg.Wait()
	sup.Wait()
	if store.Get().Access != "fresh" {
		t.Error("credential not rotated after recovery")
	}
}

func TestReauthFailureShutsDown(t *testing.T) {
	store := newTestStore(t, tokens.Credential{Access: "stale", Refresh: "r"})
	transport := &fakeTransport{}
	var shutdownErr atomic.Value
	sup := NewSupervisor(store,
		func(ctx context.Context, refreshToken string) (tokens.Credential, error) {
			return tokens.Credential{}, errors.New("refresh token revoked")
		},
		transport,
		func(err error) { shutdownErr.Store(err) },
	)

	sup.HandleNotice(context.Background(), "Login authentication failed")
	sup.Wait()

	if shutdownErr.Load() == nil {
		t.Fatal("shutdown callback not invoked")
	}
	if transport.restarts.Load() != 0 {
		t.Error("transport must not restart when reauth fails")
	}
	if store.Get().Access != "stale" {
		t.Error("credential must not change when reauth fails")
	}
}

func TestMissingRefreshTokenShutsDown(t *testing.T) {
	store := newTestStore(t, tokens.Credential{Access: "stale"})
	var shutdownErr atomic.Value
	sup := NewSupervisor(store, nil, &fakeTransport{},
		func(err error) { shutdownErr.Store(err) })

	sup.HandleNotice(context.Background(), "login unsuccessful")
	sup.Wait()
	if shutdownErr.Load() == nil {
		t.Fatal("shutdown callback not invoked for missing refresh token")
	}
}

func TestOrdinaryNoticeIgnored(t *testing.T) {
	sup := NewSupervisor(nil, nil, nil, nil)
	if sup.HandleNotice(context.Background(), "Now hosting somechannel") {
		t.Error("ordinary notice must not trigger recovery")
	}
}
