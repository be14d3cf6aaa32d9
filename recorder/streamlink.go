package recorder

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// StreamlinkRecorder captures a live Twitch broadcast by running streamlink
// with a file output. streamlink exits 0 when the stream ends on its own.
type StreamlinkRecorder struct {
	Opts Options
}

func (r StreamlinkRecorder) Record(ctx context.Context, dbc *sql.DB, sess *Session) error {
	if err := os.MkdirAll(filepath.Dir(sess.VideoPath), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	if CircuitOpen(ctx, dbc) {
		return fmt.Errorf("capture circuit open; refusing new twitch capture")
	}

	bin := r.Opts.StreamlinkPath
	if bin == "" {
		bin = "streamlink"
	}
	quality := r.Opts.Quality
	if quality == "" {
		quality = "best"
	}

	err := runWithRetry(ctx, dbc, sess, r.Opts, true, func(capCtx context.Context, attempt int) error {
		// Each retry writes a fresh suffixed file so footage captured by an
		// earlier attempt is never overwritten. Retention globs the siblings.
		outPath := attemptPath(sess.VideoPath, attempt)
		args := []string{
			"--force", // overwrite a leftover of the same attempt after a crash
			"-o", outPath,
			"--twitch-disable-ads",
			sess.URL,
			quality,
		}
		cmd := exec.CommandContext(capCtx, bin, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		progCtx, stopProgress := context.WithCancel(capCtx)
		go trackProgress(progCtx, dbc, sess.ID, outPath)
		defer stopProgress()

		if err := cmd.Run(); err != nil {
			if capCtx.Err() != nil {
				return capCtx.Err()
			}
			return fmt.Errorf("streamlink: %w: %s", err, stderrTail(stderr.String()))
		}
		return nil
	})

	switch {
	case err == nil:
		ResetCircuit(ctx, dbc)
		finishSession(dbc, sess, "complete", nil)
		return nil
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		finishSession(dbc, sess, "stopped", nil)
		return nil
	default:
		RecordCaptureFailure(context.Background(), dbc)
		finishSession(dbc, sess, "failed", err)
		return err
	}
}

// attemptPath returns the output file for a given attempt index: the base
// path for the first attempt, `<base>_r<N><ext>` for retries.
func attemptPath(path string, attempt int) string {
	if attempt == 0 {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + fmt.Sprintf("_r%d", attempt) + ext
}

// stderrTail keeps the last few hundred bytes of subprocess stderr; enough
// for classification without persisting an entire progress log.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	const max = 400
	if len(s) > max {
		s = "..." + s[len(s)-max:]
	}
	return s
}
