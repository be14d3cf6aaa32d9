// Package recorder runs the subprocess capture engines: streamlink for Twitch
// video and yt-dlp for YouTube video (and its live chat). It owns retry with
// backoff, error classification, progress persistence, a global concurrency
// limit, and a circuit breaker over repeated capture failures. The extractors
// themselves live entirely in the wrapped tools.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"log/slog"

	"github.com/luoshu/livesaver/telemetry"
)

// Session identifies one live broadcast being captured.
type Session struct {
	ID        string
	Platform  string // "twitch" or "youtube"
	URL       string
	StreamID  string
	Title     string
	StartedAt time.Time
	VideoPath string
	ChatPath  string
}

// NewSession builds a session with file paths under dataDir following the
// <platform>_<timestamp> convention.
func NewSession(platform, url string, startedAt time.Time, dataDir string) *Session {
	ts := startedAt.UTC().Format("20060102_150405")
	s := &Session{
		ID:        uuid.New().String(),
		Platform:  platform,
		URL:       url,
		StartedAt: startedAt.UTC(),
	}
	switch platform {
	case "twitch":
		s.VideoPath = filepath.Join(dataDir, fmt.Sprintf("twitch_%s.ts", ts))
		s.ChatPath = filepath.Join(dataDir, fmt.Sprintf("twitch_%s.jsonl", ts))
	case "youtube":
		// yt-dlp output template; the tool picks the container extension.
		s.VideoPath = filepath.Join(dataDir, fmt.Sprintf("youtube_%s.%%(ext)s", ts))
		s.ChatPath = filepath.Join(dataDir, fmt.Sprintf("youtube_%s.chat.%%(ext)s", ts))
	}
	return s
}

// Options carries the knobs shared by both capture engines.
type Options struct {
	DataDir        string
	Quality        string
	StreamlinkPath string
	YtDlpPath      string
	CookiesFile    string
	MaxAttempts    int
	BackoffBase    time.Duration
}

func (o Options) maxAttempts() int {
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return 5
}

func (o Options) backoffBase() time.Duration {
	if o.BackoffBase > 0 {
		return o.BackoffBase
	}
	return 2 * time.Second
}

// Recorder abstracts video capture (for tests/mocks).
type Recorder interface {
	Record(ctx context.Context, dbc *sql.DB, sess *Session) error
}

// capture cancellation registry
var (
	activeMu      = &sync.Mutex{}
	activeCancels = map[string]context.CancelFunc{}
)

func registerCancel(id string, cancel context.CancelFunc) {
	activeMu.Lock()
	activeCancels[id] = cancel
	activeMu.Unlock()
}

func unregisterCancel(id string) {
	activeMu.Lock()
	delete(activeCancels, id)
	activeMu.Unlock()
}

// CancelCapture cancels a running capture by session id. Returns false when no
// capture with that id is active.
func CancelCapture(id string) bool {
	activeMu.Lock()
	defer activeMu.Unlock()
	if c, ok := activeCancels[id]; ok {
		c()
		delete(activeCancels, id)
		return true
	}
	return false
}

// runWithRetry drives a capture attempt function through the shared retry
// policy: exponential backoff with jitter, capped attempts, immediate abort on
// fatal errors or context cancellation. attempt receives the attempt index and
// returns nil when the stream ended normally. holdSlot charges the run against
// the global capture semaphore; companion captures (yt-dlp live_chat) pass
// false so they can never starve the video capture out of its slot.
func runWithRetry(ctx context.Context, dbc *sql.DB, sess *Session, opts Options, holdSlot bool, attempt func(context.Context, int) error) error {
	if holdSlot {
		if !acquireCaptureSlot(ctx) {
			return ctx.Err()
		}
		defer releaseCaptureSlot()
	}

	logger := slog.Default().With(slog.String("session_id", sess.ID), slog.String("platform", sess.Platform))
	maxAttempts := opts.maxAttempts()
	base := opts.backoffBase()
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			backoff := base * time.Duration(1<<i)
			backoff += time.Duration(rand.Int63n(int64(base))) // up to base extra
			logger.Warn("retrying capture", slog.Int("attempt", i), slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			_, _ = dbc.ExecContext(ctx, `UPDATE recordings SET retries = COALESCE(retries,0) + 1, updated_at=NOW() WHERE session_id=$1`, sess.ID)
		}

		capCtx, cancel := context.WithCancel(ctx)
		registerCancel(sess.ID, cancel)
		err := attempt(capCtx, i)
		unregisterCancel(sess.ID)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.Canceled) {
			// per-session cancel via CancelCapture
			return err
		}
		if IsFatalError(err) {
			logger.Warn("capture error is fatal; not retrying", slog.Any("err", err))
			return err
		}
		_, _ = dbc.ExecContext(ctx, `UPDATE recordings SET last_error=$1, updated_at=NOW() WHERE session_id=$2`, err.Error(), sess.ID)
	}
	return lastErr
}

// finishSession persists the terminal state of a session and records metrics.
// It uses its own short context so the write still lands when the session ctx
// was canceled (the normal stop path).
func finishSession(dbc *sql.DB, sess *Session, state string, captureErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errText := ""
	if captureErr != nil {
		errText = captureErr.Error()
	}
	_, _ = dbc.ExecContext(ctx, `UPDATE recordings SET state=$1, last_error=NULLIF($2,''), ended_at=NOW(), updated_at=NOW() WHERE session_id=$3`,
		state, errText, sess.ID)
	if telemetry.SessionDuration != nil {
		telemetry.SessionDuration.Observe(time.Since(sess.StartedAt).Seconds())
	}
	switch state {
	case "complete", "stopped":
		if telemetry.RecordingsCompleted != nil {
			telemetry.RecordingsCompleted.Inc()
		}
	case "failed":
		if telemetry.RecordingsFailed != nil {
			telemetry.RecordingsFailed.Inc()
		}
	}
}
