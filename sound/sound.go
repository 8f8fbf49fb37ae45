// Package sound gates audio cue playback behind per-cue cooldowns. Actual
// playback is an external collaborator supplied as a PlayFunc.
package sound

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PlayFunc performs the actual playback of a cue file. It may block for the
// duration of the clip.
type PlayFunc func(ctx context.Context, file string) error

// Cue is a registered sound effect.
type Cue struct {
	File     string
	Cooldown time.Duration

	mu         sync.Mutex
	lastPlayed time.Time
}

// Board maps cue names to files and enforces their cooldowns.
type Board struct {
	mu   sync.RWMutex
	cues map[string]*Cue
	play PlayFunc
	now  func() time.Time
	log  *slog.Logger
}

// NewBoard returns a board delegating playback to play. A nil play func makes
// Play log and return without error, so a missing audio backend never breaks
// dispatch.
func NewBoard(play PlayFunc) *Board {
	return &Board{
		cues: make(map[string]*Cue),
		play: play,
		now:  time.Now,
		log:  slog.Default().With(slog.String("component", "sound")),
	}
}

// SetNowFunc overrides the clock, for tests.
func (b *Board) SetNowFunc(now func() time.Time) { b.now = now }

// Register adds or replaces a cue.
func (b *Board) Register(name, file string, cooldown time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cues[name] = &Cue{File: file, Cooldown: cooldown}
}

// Play triggers the named cue. With withCooldown set, a cue still cooling down
// is skipped silently (returns false). Returns false for unknown cues.
func (b *Board) Play(ctx context.Context, name string, withCooldown bool) bool {
	b.mu.RLock()
	cue, ok := b.cues[name]
	b.mu.RUnlock()
	if !ok {
		b.log.Warn("unknown sound cue", slog.String("cue", name))
		return false
	}
	if withCooldown {
		cue.mu.Lock()
		now := b.now()
		if now.Sub(cue.lastPlayed) < cue.Cooldown {
			cue.mu.Unlock()
			b.log.Debug("sound cue on cooldown", slog.String("cue", name))
			return false
		}
		cue.lastPlayed = now
		cue.mu.Unlock()
	}
	if b.play == nil {
		b.log.Info("sound cue (no player configured)", slog.String("cue", name))
		return true
	}
	if err := b.play(ctx, cue.File); err != nil {
		b.log.Error("sound playback failed", slog.String("cue", name), slog.Any("err", err))
		return false
	}
	return true
}
