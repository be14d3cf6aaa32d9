package recorder

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

// captureSemaphore limits concurrent video captures globally. Each session
// holds one slot for its video subprocess; chat companions (IRC, yt-dlp
// live_chat) run slot-free so they cannot starve the video out.
// Initialized once from MAX_CONCURRENT_RECORDINGS (default: 2).
var (
	captureSemaphore     chan struct{}
	captureSemaphoreOnce sync.Once
)

func initCaptureSemaphore() {
	captureSemaphoreOnce.Do(func() {
		maxConcurrent := 2
		if s := os.Getenv("MAX_CONCURRENT_RECORDINGS"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				maxConcurrent = n
			}
		}
		captureSemaphore = make(chan struct{}, maxConcurrent)
		slog.Info("capture concurrency limit initialized", slog.Int("max_concurrent", maxConcurrent))
	})
}

// acquireCaptureSlot blocks until a capture slot is available or the context
// is canceled. Returns true if a slot was acquired.
func acquireCaptureSlot(ctx context.Context) bool {
	initCaptureSemaphore()
	select {
	case captureSemaphore <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// releaseCaptureSlot releases a capture slot.
func releaseCaptureSlot() {
	initCaptureSemaphore()
	select {
	case <-captureSemaphore:
	default:
		// mismatched acquire/release
		slog.Warn("capture slot release called without corresponding acquire")
	}
}

// ActiveCaptures returns the current number of captures holding a slot.
func ActiveCaptures() int {
	initCaptureSemaphore()
	return len(captureSemaphore)
}

// MaxConcurrentCaptures returns the configured capture limit.
func MaxConcurrentCaptures() int {
	initCaptureSemaphore()
	return cap(captureSemaphore)
}
