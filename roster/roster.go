// Package roster keeps the live registry of chat participants and their
// enrichment attributes (platform id, follow and subscription status).
// Membership is best-effort presence tracking: a remove racing an in-flight
// upsert may let the entry reappear, which is accepted.
package roster

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Viewer is a known chat participant. The lowercased username is the identity
// key; enrichment fields default to false/empty when the lookup fails.
type Viewer struct {
	Username   string
	UserID     string
	Following  bool
	Subscribed bool
}

// Identity is the result of an external enrichment lookup.
type Identity struct {
	UserID     string
	Following  bool
	Subscribed bool
}

// Enricher resolves a username to platform identity attributes. Implementations
// may block on network calls; the roster never holds its lock across them.
type Enricher interface {
	LookupUser(ctx context.Context, username string) (Identity, error)
}

// EnricherFunc adapts a function to the Enricher interface.
type EnricherFunc func(ctx context.Context, username string) (Identity, error)

func (f EnricherFunc) LookupUser(ctx context.Context, username string) (Identity, error) {
	return f(ctx, username)
}

// Filter selects viewers for eligibility listings.
type Filter func(*Viewer) bool

// Predefined filters for random-draw consumers.
var (
	Anyone      Filter = func(*Viewer) bool { return true }
	Followers   Filter = func(v *Viewer) bool { return v.Following }
	Subscribers Filter = func(v *Viewer) bool { return v.Subscribed }
)

// Roster is the concurrent-safe participant registry.
type Roster struct {
	mu       sync.RWMutex
	viewers  map[string]*Viewer
	enricher Enricher
	log      *slog.Logger
}

// New returns an empty roster. enricher may be nil, in which case viewers are
// stored with default attributes.
func New(enricher Enricher) *Roster {
	return &Roster{
		viewers:  make(map[string]*Viewer),
		enricher: enricher,
		log:      slog.Default().With(slog.String("component", "roster")),
	}
}

// Upsert returns the stored viewer for username, creating it via the
// enrichment lookup when absent. The lookup runs without the roster lock, so
// concurrent upserts for the same username may each fire a lookup; the first
// completed insert wins and later results are discarded. Duplicate stored
// entries are impossible.
func (r *Roster) Upsert(ctx context.Context, username string) *Viewer {
	key := strings.ToLower(strings.TrimSpace(username))
	if key == "" {
		return nil
	}
	r.mu.RLock()
	v, ok := r.viewers[key]
	r.mu.RUnlock()
	if ok {
		return v
	}

	id := r.lookup(ctx, key)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.viewers[key]; ok {
		// Lost the race; keep the first completed insert.
		return existing
	}
	v = &Viewer{Username: key, UserID: id.UserID, Following: id.Following, Subscribed: id.Subscribed}
	r.viewers[key] = v
	r.log.Debug("viewer added", slog.String("username", key), slog.Bool("following", v.Following), slog.Bool("subscribed", v.Subscribed))
	return v
}

// Refresh re-runs the enrichment lookup for an existing viewer and updates its
// attributes in place (used when resub/re-follow signals arrive). Missing
// viewers are upserted instead.
func (r *Roster) Refresh(ctx context.Context, username string) *Viewer {
	key := strings.ToLower(strings.TrimSpace(username))
	if key == "" {
		return nil
	}
	r.mu.RLock()
	_, ok := r.viewers[key]
	r.mu.RUnlock()
	if !ok {
		return r.Upsert(ctx, key)
	}

	id := r.lookup(ctx, key)

	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.viewers[key]
	if !ok {
		// Removed while we were looking it up; reinsert with fresh attributes.
		v = &Viewer{Username: key}
		r.viewers[key] = v
	}
	v.UserID = id.UserID
	v.Following = id.Following
	v.Subscribed = id.Subscribed
	return v
}

func (r *Roster) lookup(ctx context.Context, username string) Identity {
	if r.enricher == nil {
		return Identity{}
	}
	id, err := r.enricher.LookupUser(ctx, username)
	if err != nil {
		// Transient failure: keep the viewer with conservative defaults.
		r.log.Warn("enrichment lookup failed", slog.String("username", username), slog.Any("err", err))
		return Identity{}
	}
	return id
}

// Remove drops username from the roster; no-op when absent.
func (r *Roster) Remove(username string) {
	key := strings.ToLower(strings.TrimSpace(username))
	r.mu.Lock()
	_, ok := r.viewers[key]
	delete(r.viewers, key)
	r.mu.Unlock()
	if ok {
		r.log.Debug("viewer removed", slog.String("username", key))
	}
}

// Has reports whether username is currently in the roster.
func (r *Roster) Has(username string) bool {
	key := strings.ToLower(strings.TrimSpace(username))
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.viewers[key]
	return ok
}

// Len returns the current roster size.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// Eligible returns a snapshot of usernames matching filter, excluding the
// given username (the invoker). The slice is a copy and safe to reuse or
// shuffle by random-draw consumers.
func (r *Roster) Eligible(filter Filter, exclude string) []string {
	if filter == nil {
		filter = Anyone
	}
	ex := strings.ToLower(strings.TrimSpace(exclude))
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.viewers))
	for key, v := range r.viewers {
		if key == ex {
			continue
		}
		if filter(v) {
			out = append(out, key)
		}
	}
	return out
}
