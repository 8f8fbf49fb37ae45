// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsIngested     *prometheus.CounterVec // platform
	CommandsExecuted   *prometheus.CounterVec // command
	CommandPanics      prometheus.Counter
	CooldownRejections *prometheus.CounterVec // command
	VotesCast          prometheus.Counter
	AuthFailures       prometheus.Counter
	Reconnects         prometheus.Counter

	// Histograms (seconds)
	DispatchDuration prometheus.Observer

	// Gauges
	RosterSizeGauge prometheus.Gauge
	QueueDepthGauge prometheus.Gauge
	VoteActiveGauge prometheus.Gauge // 1=active,0=idle
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_events_ingested_total", Help: "Chat events accepted by the normalizer, by platform"}, []string{"platform"})
		CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_commands_executed_total", Help: "Commands executed, by command name"}, []string{"command"})
		CommandPanics = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_command_panics_total", Help: "Command handler panics recovered at the dispatch boundary"})
		CooldownRejections = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_cooldown_rejections_total", Help: "Command invocations rejected by an unexpired cooldown"}, []string{"command"})
		VotesCast = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_votes_cast_total", Help: "Vote responses recorded during active sessions"})
		AuthFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_auth_failures_total", Help: "Transport auth failure notices observed"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_reconnects_total", Help: "Chat transport reconnects after credential refresh"})
		DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_dispatch_duration_seconds", Help: "Event dispatch duration seconds", Buckets: prometheus.DefBuckets})
		RosterSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_roster_size", Help: "Current number of tracked viewers"})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_event_queue_depth", Help: "Events waiting in the dispatch queue"})
		VoteActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_vote_active", Help: "Vote session active=1 idle=0"})
	})
}

// CountEvent records one accepted chat event for a platform.
func CountEvent(platform string) {
	if EventsIngested != nil {
		EventsIngested.WithLabelValues(platform).Inc()
	}
}

// CountCommand records one executed command.
func CountCommand(name string) {
	if CommandsExecuted != nil {
		CommandsExecuted.WithLabelValues(name).Inc()
	}
}

// CountCooldownRejection records a cooldown-gated rejection.
func CountCooldownRejection(name string) {
	if CooldownRejections != nil {
		CooldownRejections.WithLabelValues(name).Inc()
	}
}

// CountPanic records a recovered command panic.
func CountPanic() {
	if CommandPanics != nil {
		CommandPanics.Inc()
	}
}

// CountVote records one accepted vote response.
func CountVote() {
	if VotesCast != nil {
		VotesCast.Inc()
	}
}

// CountAuthFailure records an observed transport auth failure notice.
func CountAuthFailure() {
	if AuthFailures != nil {
		AuthFailures.Inc()
	}
}

// CountReconnect records a transport restart after credential refresh.
func CountReconnect() {
	if Reconnects != nil {
		Reconnects.Inc()
	}
}

// SetRosterSize records the current viewer count.
func SetRosterSize(n int) {
	if RosterSizeGauge != nil {
		RosterSizeGauge.Set(float64(n))
	}
}

// SetQueueDepth records the current dispatch queue backlog.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// SetVoteActive sets the vote gauge to 1 when a session is open.
func SetVoteActive(active bool) {
	if VoteActiveGauge != nil {
		if active {
			VoteActiveGauge.Set(1)
		} else {
			VoteActiveGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
