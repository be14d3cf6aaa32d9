package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RetentionPolicy defines which finished recordings to clean up.
type RetentionPolicy struct {
	// KeepLastNDays: recordings older than this many days are eligible for cleanup (0 = disabled)
	KeepLastNDays int
	// KeepLastN: keep only the N most recent recordings (0 = disabled)
	KeepLastN int
	// DryRun: log actions but don't delete files or update DB
	DryRun bool
	// Interval: how often to run the cleanup job
	Interval time.Duration
}

// LoadRetentionPolicy loads retention configuration from environment variables.
func LoadRetentionPolicy() RetentionPolicy {
	policy := RetentionPolicy{
		Interval: 6 * time.Hour,
	}
	if s := os.Getenv("RETENTION_KEEP_DAYS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			policy.KeepLastNDays = n
		}
	}
	if s := os.Getenv("RETENTION_KEEP_COUNT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			policy.KeepLastN = n
		}
	}
	if os.Getenv("RETENTION_DRY_RUN") == "1" {
		policy.DryRun = true
	}
	if s := os.Getenv("RETENTION_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			policy.Interval = d
		}
	}
	return policy
}

// StartRetentionJob periodically deletes old recording files per policy.
func StartRetentionJob(ctx context.Context, dbc *sql.DB) {
	policy := LoadRetentionPolicy()
	if policy.KeepLastNDays == 0 && policy.KeepLastN == 0 {
		slog.Info("retention job disabled (no policy configured)")
		return
	}
	slog.Info("retention job starting",
		slog.Int("keep_days", policy.KeepLastNDays),
		slog.Int("keep_count", policy.KeepLastN),
		slog.Bool("dry_run", policy.DryRun),
		slog.Duration("interval", policy.Interval))

	if err := runRetentionCleanup(ctx, dbc, policy); err != nil {
		slog.Warn("retention cleanup failed", slog.Any("err", err))
	}
	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("retention job stopped")
			return
		case <-ticker.C:
			if err := runRetentionCleanup(ctx, dbc, policy); err != nil {
				slog.Warn("retention cleanup failed", slog.Any("err", err))
			}
		}
	}
}

// runRetentionCleanup performs a single cleanup cycle.
func runRetentionCleanup(ctx context.Context, dbc *sql.DB, policy RetentionPolicy) error {
	logger := slog.Default().With(
		slog.String("component", "retention_cleanup"),
		slog.Bool("dry_run", policy.DryRun),
	)

	retained := make(map[string]struct{})

	if policy.KeepLastNDays > 0 {
		cutoff := time.Now().Add(-time.Duration(policy.KeepLastNDays) * 24 * time.Hour)
		if err := collectSessionIDs(ctx, dbc, retained,
			`SELECT session_id FROM recordings WHERE started_at >= $1`, cutoff); err != nil {
			return fmt.Errorf("query recent recordings: %w", err)
		}
		logger.Debug("identified recordings to retain by date", slog.Int("count", len(retained)))
	}

	if policy.KeepLastN > 0 {
		if err := collectSessionIDs(ctx, dbc, retained,
			`SELECT session_id FROM recordings ORDER BY started_at DESC LIMIT $1`, policy.KeepLastN); err != nil {
			return fmt.Errorf("query last n recordings: %w", err)
		}
		logger.Debug("identified recordings to retain by count", slog.Int("retained_count", len(retained)))
	}

	// Never touch sessions that are still recording or were updated recently
	// (an ending session may still be flushing).
	if err := collectSessionIDs(ctx, dbc, retained,
		`SELECT session_id FROM recordings
		 WHERE state='recording' OR updated_at > NOW() - INTERVAL '1 hour'`); err != nil {
		return fmt.Errorf("query active recordings: %w", err)
	}

	rows, err := dbc.QueryContext(ctx, `
		SELECT session_id, video_path, chat_path, started_at
		FROM recordings
		WHERE video_path IS NOT NULL AND video_path != ''
		ORDER BY started_at ASC`)
	if err != nil {
		return fmt.Errorf("query recordings with files: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()

	cleaned := 0
	for rows.Next() {
		var sessionID, videoPath string
		var chatPath sql.NullString
		var startedAt time.Time
		if err := rows.Scan(&sessionID, &videoPath, &chatPath, &startedAt); err != nil {
			continue
		}
		if _, keep := retained[sessionID]; keep {
			continue
		}
		if policy.DryRun {
			logger.Info("dry run: would delete recording files",
				slog.String("session_id", sessionID), slog.String("video_path", videoPath))
			continue
		}
		removeRecordingFile(logger, videoPath)
		if chatPath.Valid && chatPath.String != "" {
			removeRecordingFile(logger, chatPath.String)
		}
		if _, err := dbc.ExecContext(ctx,
			`UPDATE recordings SET video_path=NULL, chat_path=NULL, updated_at=NOW() WHERE session_id=$1`, sessionID); err != nil {
			logger.Warn("failed to clear paths after cleanup", slog.String("session_id", sessionID), slog.Any("err", err))
			continue
		}
		cleaned++
		logger.Info("cleaned up recording files", slog.String("session_id", sessionID), slog.Time("started_at", startedAt))
	}
	if cleaned > 0 {
		logger.Info("retention cycle complete", slog.Int("cleaned", cleaned))
	}
	return rows.Err()
}

func collectSessionIDs(ctx context.Context, dbc *sql.DB, into map[string]struct{}, query string, args ...any) error {
	rows, err := dbc.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			into[id] = struct{}{}
		}
	}
	return rows.Err()
}

func removeRecordingFile(logger *slog.Logger, path string) {
	// yt-dlp sessions store an output template; expand it to the real files.
	if strings.Contains(path, "%(ext)s") {
		matches, _ := filepath.Glob(strings.ReplaceAll(path, "%(ext)s", "*"))
		for _, m := range matches {
			removeRecordingFile(logger, m)
		}
		return
	}
	// Streamlink retries write suffixed siblings (<base>_r<N>.<ext>).
	if ext := filepath.Ext(path); ext != "" {
		matches, _ := filepath.Glob(strings.TrimSuffix(path, ext) + "_r*" + ext)
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to delete recording file", slog.String("path", m), slog.Any("err", err))
			}
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to delete recording file", slog.String("path", path), slog.Any("err", err))
	}
}
