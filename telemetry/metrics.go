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
	PollCycles          prometheus.Counter
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingsFailed    prometheus.Counter
	ChatMessages        prometheus.Counter
	BytesWritten        prometheus.Counter

	// Histograms (seconds)
	SessionDuration prometheus.Observer

	// Gauges
	TwitchLiveGauge     prometheus.Gauge
	YouTubeLiveGauge    prometheus.Gauge
	ActiveSessionsGauge prometheus.Gauge
	CircuitOpenGauge    prometheus.Gauge // 1=open,0=closed
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "livesaver_poll_cycles_total", Help: "Number of live-status poll cycles"})
		RecordingsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "livesaver_recordings_started_total", Help: "Number of recording sessions started"})
		RecordingsCompleted = promauto.NewCounter(prometheus.CounterOpts{Name: "livesaver_recordings_completed_total", Help: "Number of recording sessions completed"})
		RecordingsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "livesaver_recordings_failed_total", Help: "Number of recording sessions failed"})
		ChatMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "livesaver_chat_messages_total", Help: "Number of chat messages captured"})
		BytesWritten = promauto.NewCounter(prometheus.CounterOpts{Name: "livesaver_bytes_written_total", Help: "Bytes of video written to disk"})
		SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livesaver_session_duration_seconds", Help: "Recording session duration seconds", Buckets: prometheus.ExponentialBuckets(60, 2, 10)})
		TwitchLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livesaver_twitch_live", Help: "Twitch channel live=1 offline=0"})
		YouTubeLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livesaver_youtube_live", Help: "YouTube channel live=1 offline=0"})
		ActiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livesaver_active_sessions", Help: "Currently running recording sessions"})
		CircuitOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livesaver_circuit_open", Help: "Capture circuit breaker open=1 closed=0"})
	})
}

// SetLive records the live flag for a platform gauge.
func SetLive(g prometheus.Gauge, live bool) {
	if g == nil {
		return
	}
	if live {
		g.Set(1)
	} else {
		g.Set(0)
	}
}

// UpdateCircuitGauge sets gauge to 1 if open else 0.
func UpdateCircuitGauge(open bool) { SetLive(CircuitOpenGauge, open) }

// AddBytes records video bytes flushed to disk.
func AddBytes(n int64) {
	if BytesWritten != nil && n > 0 {
		BytesWritten.Add(float64(n))
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

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
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
