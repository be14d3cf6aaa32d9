package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/luoshu/livesaver/recorder"
)

type Handlers struct {
	db *sql.DB
}

func NewHandlers(db *sql.DB) *Handlers {
	return &Handlers{db: db}
}

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"circuit_breaker", func() error {
			var state string
			err := h.db.QueryRowContext(r.Context(),
				"SELECT value FROM kv WHERE key='circuit_state'").Scan(&state)
			if err != nil && err != sql.ErrNoRows {
				return err
			}
			if state == "open" {
				return fmt.Errorf("capture circuit open")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus returns a lightweight status summary: active sessions, capture
// concurrency, circuit state, job heartbeats, and the most recent recordings.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	var recording, complete, failed int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings WHERE state='recording'`).Scan(&recording)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings WHERE state='complete'`).Scan(&complete)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings WHERE state='failed'`).Scan(&failed)
	resp["recording"] = recording
	resp["complete"] = complete
	resp["failed"] = failed

	resp["active_captures"] = recorder.ActiveCaptures()
	resp["max_concurrent_captures"] = recorder.MaxConcurrentCaptures()

	var circuitState string
	_ = h.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key='circuit_state'`).Scan(&circuitState)
	if circuitState == "" {
		circuitState = "closed"
	}
	resp["circuit_state"] = circuitState

	// Job heartbeats
	heartbeats := map[string]string{}
	rows, err := h.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key LIKE '%_heartbeat'`)
	if err == nil {
		defer func() {
			if err := rows.Close(); err != nil {
				slog.Warn("failed to close rows", slog.Any("err", err))
			}
		}()
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err == nil {
				heartbeats[k] = v
			}
		}
	}
	if len(heartbeats) > 0 {
		resp["heartbeats"] = heartbeats
	}

	resp["recent"] = h.recentRecordings(r, 10)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// recordingRow is the JSON shape of one recordings entry.
type recordingRow struct {
	SessionID    string     `json:"session_id"`
	Platform     string     `json:"platform"`
	StreamID     string     `json:"stream_id,omitempty"`
	Title        string     `json:"title,omitempty"`
	VideoPath    string     `json:"video_path,omitempty"`
	ChatPath     string     `json:"chat_path,omitempty"`
	BytesWritten int64      `json:"bytes_written"`
	State        string     `json:"state"`
	Retries      int        `json:"retries"`
	LastError    string     `json:"last_error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

func (h *Handlers) recentRecordings(r *http.Request, limit int) []recordingRow {
	out := []recordingRow{}
	rows, err := h.db.QueryContext(r.Context(), `
		SELECT session_id, platform, COALESCE(stream_id,''), COALESCE(title,''),
		       COALESCE(video_path,''), COALESCE(chat_path,''), bytes_written,
		       COALESCE(state,''), retries, COALESCE(last_error,''), started_at, ended_at
		FROM recordings ORDER BY started_at DESC NULLS LAST LIMIT $1`, limit)
	if err != nil {
		slog.Warn("recordings query failed", slog.Any("err", err))
		return out
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	for rows.Next() {
		var rec recordingRow
		var startedAt, endedAt sql.NullTime
		if err := rows.Scan(&rec.SessionID, &rec.Platform, &rec.StreamID, &rec.Title,
			&rec.VideoPath, &rec.ChatPath, &rec.BytesWritten, &rec.State,
			&rec.Retries, &rec.LastError, &startedAt, &endedAt); err != nil {
			continue
		}
		if startedAt.Valid {
			rec.StartedAt = &startedAt.Time
		}
		if endedAt.Valid {
			rec.EndedAt = &endedAt.Time
		}
		out = append(out, rec)
	}
	return out
}

// HandleRecordingsList returns recent recordings.
func (h *Handlers) HandleRecordingsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.recentRecordings(r, 50))
}

// HandleRecordingsDispatcher routes /recordings/{session_id}/cancel.
func (h *Handlers) HandleRecordingsDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/recordings/")
	parts := strings.Split(rest, "/")
	if len(parts) == 2 && parts[1] == "cancel" {
		h.handleRecordingCancel(w, r, parts[0])
		return
	}
	http.NotFound(w, r)
}

// handleRecordingCancel cancels an in-flight capture by session id.
func (h *Handlers) handleRecordingCancel(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}
	if !recorder.CancelCapture(sessionID) {
		http.Error(w, "no active capture for session", http.StatusNotFound)
		return
	}
	slog.Info("capture cancel requested", slog.String("session_id", sessionID))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "canceling", "session_id": sessionID})
}
