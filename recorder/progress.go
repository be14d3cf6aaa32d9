package recorder

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/luoshu/livesaver/telemetry"
)

// trackProgress polls the growing output file while the capture subprocess
// runs and persists byte counts into the recordings row. yt-dlp sessions use
// an output template; the glob derived from it matches whatever container the
// tool picked. Returns when ctx is canceled.
func trackProgress(ctx context.Context, dbc *sql.DB, sessionID, path string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var lastBytes int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		size := outputSize(path)
		delta, watermark := nextProgress(size, lastBytes)
		if watermark == lastBytes {
			continue
		}
		lastBytes = watermark
		telemetry.AddBytes(delta)
		_, _ = dbc.ExecContext(ctx, `UPDATE recordings SET bytes_written=$1, state='recording', updated_at=NOW() WHERE session_id=$2`,
			size, sessionID)
	}
}

// nextProgress returns the counter delta and the new watermark for an
// observed output size. A size below the watermark means the file was
// restarted (fresh attempt); the watermark resets so reporting resumes
// instead of stalling, with no negative delta.
func nextProgress(size, last int64) (delta, watermark int64) {
	if size < last {
		return 0, size
	}
	return size - last, size
}

// outputSize returns the byte size of the capture output. Template paths
// (containing "%(ext)s") are resolved via glob, including yt-dlp's .part
// files while the download is in flight.
func outputSize(path string) int64 {
	if !strings.Contains(path, "%(ext)s") {
		if fi, err := os.Stat(path); err == nil {
			return fi.Size()
		}
		return 0
	}
	pattern := strings.ReplaceAll(path, "%(ext)s", "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0
	}
	var total int64
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
			total += fi.Size()
		}
	}
	return total
}
