// Package session supervises the chat transport's authentication lifecycle:
// it classifies server notices, refreshes the stored credential when the
// transport reports an auth failure, and restarts the transport with the new
// token. A refresh that itself fails is unrecoverable and triggers shutdown.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"chattercast/telemetry"
	"chattercast/tokens"
)

// Auth failure phrasings the IRC server uses in NOTICE lines.
var authFailurePhrases = []string{
	"login unsuccessful",
	"authentication failed",
	"improperly formatted",
	"invalid nick",
}

// IsAuthFailure reports whether a server notice describes a credential
// problem rather than an informational message.
func IsAuthFailure(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range authFailurePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Transport is the restartable chat connection the supervisor manages.
type Transport interface {
	Restart(ctx context.Context, accessToken string) error
}

// Reauthorizer exchanges a refresh token for a fresh credential.
type Reauthorizer func(ctx context.Context, refreshToken string) (tokens.Credential, error)

// Supervisor reacts to transport auth failures. Recovery is single-flight:
// a burst of failure notices from one broken connection produces exactly one
// refresh and one restart.
type Supervisor struct {
	Store     *tokens.Store
	Reauth    Reauthorizer
	Transport Transport
	Shutdown  func(err error)

	recovering atomic.Bool

	mu   sync.Mutex
	done chan struct{} // closed when a recovery attempt finishes; test hook
}

// NewSupervisor wires a supervisor over the credential store and transport.
func NewSupervisor(store *tokens.Store, reauth Reauthorizer, transport Transport, shutdown func(error)) *Supervisor {
	return &Supervisor{Store: store, Reauth: reauth, Transport: transport, Shutdown: shutdown}
}

// HandleNotice inspects a server notice and, when it indicates an auth
// failure, kicks off asynchronous recovery. It reports whether the notice was
// treated as an auth failure. Non-failure notices are the caller's to log.
func (s *Supervisor) HandleNotice(ctx context.Context, text string) bool {
	if !IsAuthFailure(text) {
		return false
	}
	telemetry.CountAuthFailure()
	if !s.recovering.CompareAndSwap(false, true) {
		slog.Debug("auth failure notice during active recovery", slog.String("notice", text))
		return true
	}
	slog.Warn("transport auth failure, refreshing credential", slog.String("notice", text))
	done := make(chan struct{})
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()
	go func() {
		defer close(done)
		s.recover(ctx)
	}()
	return true
}

func (s *Supervisor) recover(ctx context.Context) {
	cred := s.Store.Get()
	if cred.Refresh == "" {
		s.fail(errors.New("auth failure with no refresh token on record"))
		return
	}
	fresh, err := s.Reauth(ctx, cred.Refresh)
	if err != nil {
		s.fail(err)
		return
	}
	if err := s.Store.Set(fresh); err != nil {
		s.fail(err)
		return
	}
	if err := s.Transport.Restart(ctx, fresh.Access); err != nil {
		s.fail(err)
		return
	}
	telemetry.CountReconnect()
	slog.Info("session recovered with refreshed credential")
	s.recovering.Store(false)
}

// fail leaves the recovering flag set so no further attempts run while the
// process shuts down.
func (s *Supervisor) fail(err error) {
	slog.Error("session recovery failed", slog.Any("err", err))
	if s.Shutdown != nil {
		s.Shutdown(err)
	}
}

// Wait blocks until the in-flight recovery attempt (if any) finishes.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
