package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/luoshu/livesaver/db"
	"github.com/luoshu/livesaver/telemetry"
)

// Circuit breaker over repeated capture failures, stored in kv so the state
// survives restarts. Disabled unless CIRCUIT_FAILURE_THRESHOLD is set.

// CircuitOpen reports whether the circuit is currently open; when the cooldown
// has elapsed the circuit transitions to half-open and captures may proceed.
func CircuitOpen(ctx context.Context, dbc *sql.DB) bool {
	state, _ := db.GetKV(ctx, dbc, "circuit_state")
	if state != "open" {
		return false
	}
	until, _ := db.GetKV(ctx, dbc, "circuit_open_until")
	if until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			if time.Now().Before(t) {
				return true
			}
			_ = db.SetKV(ctx, dbc, "circuit_state", "half-open")
			slog.Info("circuit transitioning to half-open")
			return false
		}
	}
	return true
}

// RecordCaptureFailure increments the failure counter and opens the circuit
// once the threshold is reached.
func RecordCaptureFailure(ctx context.Context, dbc *sql.DB) {
	threshold := 0
	if s := os.Getenv("CIRCUIT_FAILURE_THRESHOLD"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			threshold = n
		}
	}
	if threshold <= 0 {
		return
	}
	fails := 0
	if val, _ := db.GetKV(ctx, dbc, "circuit_failures"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			fails = n
		}
	}
	fails++
	_ = db.SetKV(ctx, dbc, "circuit_failures", fmt.Sprintf("%d", fails))
	if fails >= threshold {
		cool := 5 * time.Minute
		if s := os.Getenv("CIRCUIT_OPEN_COOLDOWN"); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				cool = d
			}
		}
		until := time.Now().Add(cool).UTC().Format(time.RFC3339)
		_ = db.SetKV(ctx, dbc, "circuit_state", "open")
		_ = db.SetKV(ctx, dbc, "circuit_open_until", until)
		telemetry.UpdateCircuitGauge(true)
		slog.Warn("circuit opened", slog.Int("failures", fails), slog.String("until", until))
	}
}

// ResetCircuit closes the circuit and zeroes the failure counter after a
// successful capture.
func ResetCircuit(ctx context.Context, dbc *sql.DB) {
	state, _ := db.GetKV(ctx, dbc, "circuit_state")
	if state == "" && os.Getenv("CIRCUIT_FAILURE_THRESHOLD") == "" {
		return
	}
	_ = db.SetKV(ctx, dbc, "circuit_failures", "0")
	_ = db.SetKV(ctx, dbc, "circuit_state", "closed")
	_, _ = dbc.ExecContext(ctx, `DELETE FROM kv WHERE key='circuit_open_until'`)
	telemetry.UpdateCircuitGauge(false)
}
