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
)

// YtDlpRecorder captures a live YouTube broadcast with yt-dlp. With
// CaptureChat set it records the live_chat track instead of the video, which
// is how YouTube chat is captured (there is no open IRC equivalent).
type YtDlpRecorder struct {
	Opts        Options
	CaptureChat bool
}

func (r YtDlpRecorder) outputPath(sess *Session) string {
	if r.CaptureChat {
		return sess.ChatPath
	}
	return sess.VideoPath
}

func (r YtDlpRecorder) Record(ctx context.Context, dbc *sql.DB, sess *Session) error {
	out := r.outputPath(sess)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	if CircuitOpen(ctx, dbc) {
		return fmt.Errorf("capture circuit open; refusing new youtube capture")
	}

	bin := r.Opts.YtDlpPath
	if bin == "" {
		bin = "yt-dlp"
	}

	// Chat companions don't hold a capture slot; yt-dlp resumes the same
	// output across retries (--continue), so no per-attempt paths here.
	err := runWithRetry(ctx, dbc, sess, r.Opts, !r.CaptureChat, func(capCtx context.Context, _ int) error {
		args := []string{
			"--quiet", "--no-warnings",
			"--continue", // resume a partial capture across attempts
			"-o", out,
		}
		if r.CaptureChat {
			args = append(args, "--skip-download", "--write-subs", "--sub-langs", "live_chat")
		}
		if r.Opts.CookiesFile != "" {
			args = append(args, "--cookies", r.Opts.CookiesFile)
		}
		args = append(args, sess.URL)

		cmd := exec.CommandContext(capCtx, bin, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if !r.CaptureChat {
			progCtx, stopProgress := context.WithCancel(capCtx)
			go trackProgress(progCtx, dbc, sess.ID, out)
			defer stopProgress()
		}

		if err := cmd.Run(); err != nil {
			if capCtx.Err() != nil {
				return capCtx.Err()
			}
			return fmt.Errorf("yt-dlp: %w: %s", err, stderrTail(stderr.String()))
		}
		return nil
	})

	switch {
	case err == nil:
		if !r.CaptureChat {
			ResetCircuit(ctx, dbc)
			finishSession(dbc, sess, "complete", nil)
		}
		return nil
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		if !r.CaptureChat {
			finishSession(dbc, sess, "stopped", nil)
		}
		return nil
	default:
		if !r.CaptureChat {
			RecordCaptureFailure(context.Background(), dbc)
			finishSession(dbc, sess, "failed", err)
		}
		return err
	}
}
