package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"chattercast/event"
	"chattercast/telemetry"
)

// Pool fans dispatch work across a fixed set of workers so a slow handler
// (narration, network lookups) never stalls ingestion. The queue is bounded;
// when it fills, new events are dropped with a warning rather than blocking
// the transports.
type Pool struct {
	dispatcher *Dispatcher
	workers    int
	wg         sync.WaitGroup
	log        *slog.Logger

	// mu orders Submit sends against the queue close at shutdown.
	mu     sync.RWMutex
	queue  chan event.Event
	closed bool
}

// NewPool returns a pool of workers reading from a queue of queueSize events.
func NewPool(dispatcher *Dispatcher, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &Pool{
		dispatcher: dispatcher,
		queue:      make(chan event.Event, queueSize),
		workers:    workers,
		log:        slog.Default().With(slog.String("component", "dispatch-pool")),
	}
}

// Run starts the workers and blocks until ctx is cancelled and the queue has
// drained. Events already queued at shutdown are still dispatched.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for ev := range p.queue {
				p.dispatcher.Dispatch(ctx, ev)
				telemetry.SetQueueDepth(len(p.queue))
			}
		}()
	}
	<-ctx.Done()
	p.mu.Lock()
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit enqueues an event for dispatch. Returns false when the queue is full
// or the pool is shutting down. Safe to call concurrently with shutdown.
func (p *Pool) Submit(ev event.Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- ev:
		telemetry.SetQueueDepth(len(p.queue))
		return true
	default:
		p.log.Warn("event queue full, dropping event",
			slog.String("platform", string(ev.Platform)),
			slog.String("username", ev.Username))
		return false
	}
}

// Depth returns the current queue backlog.
func (p *Pool) Depth() int { return len(p.queue) }
