// Package cooldown tracks per-user, per-command invocation timestamps and
// answers whether a command may run again. The check-and-stamp is atomic per
// key so two rapid-fire invocations from the same user cannot both pass.
package cooldown

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// Ledger is a sharded map of (username, command) -> last successful
// invocation. Sharding keeps unrelated users/commands from serializing on a
// single lock. Entries are never deleted; the set is bounded by the number of
// distinct viewers times commands within one process lifetime.
type Ledger struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewLedger returns an empty ledger using wall-clock time.
func NewLedger() *Ledger {
	l := &Ledger{now: time.Now}
	for i := range l.shards {
		l.shards[i] = &shard{last: make(map[string]time.Time)}
	}
	return l
}

// SetNowFunc overrides the clock, for tests.
func (l *Ledger) SetNowFunc(now func() time.Time) { l.now = now }

func (l *Ledger) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// TryConsume reports whether username may invoke command given its cooldown d.
// When allowed it stamps the current time before returning, as one atomic unit
// with the check. When denied it returns the remaining wait, rounded to 100ms
// so callers can display one decimal place.
func (l *Ledger) TryConsume(username, command string, d time.Duration) (bool, time.Duration) {
	if d <= 0 {
		return true, 0
	}
	key := username + "\x00" + command
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := l.now()
	last, seen := s.last[key]
	if !seen || now.Sub(last) >= d {
		s.last[key] = now
		return true, 0
	}
	remaining := d - now.Sub(last)
	if remaining < 0 {
		remaining = 0
	}
	return false, remaining.Round(100 * time.Millisecond)
}

// Peek returns the remaining wait without consuming. Zero means the command
// is available.
func (l *Ledger) Peek(username, command string, d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	key := username + "\x00" + command
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.last[key]
	if !seen {
		return 0
	}
	remaining := d - l.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining.Round(100 * time.Millisecond)
}
