// Package overlay fans out engine updates (vote state, narration captions) to
// browser sources over Server-Sent Events. Zero connected consumers makes
// Publish a cheap no-op, which drives the vote broadcast fallback chain.
package overlay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
)

// Update is one pushed payload.
type Update struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Hub is the SSE broadcast channel. Subscribers with full buffers are skipped
// rather than blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Update]struct{}
	log  *slog.Logger
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan Update]struct{}),
		log:  slog.Default().With(slog.String("component", "overlay")),
	}
}

// Active reports whether at least one consumer is connected.
func (h *Hub) Active() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs) > 0
}

// Publish sends an update to all connected consumers. Never blocks.
func (h *Hub) Publish(event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.subs) == 0 {
		return
	}
	u := Update{Event: event, Payload: payload}
	for ch := range h.subs {
		select {
		case ch <- u:
		default:
			// Slow consumer; drop this update for it.
		}
	}
}

func (h *Hub) subscribe() chan Update {
	ch := make(chan Update, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Update) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP streams updates as SSE until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := h.subscribe()
	defer h.unsubscribe(ch)
	h.log.Debug("overlay consumer connected")

	ctx := r.Context()
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("overlay consumer disconnected")
			return
		case u := <-ch:
			if _, err := w.Write([]byte("event: " + u.Event + "\ndata: ")); err != nil {
				return
			}
			if err := enc.Encode(u.Payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
