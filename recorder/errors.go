package recorder

import (
	"strings"
)

// ErrorClass represents whether a capture error should be retried or not.
type ErrorClass int

const (
	// ErrorClassRetryable indicates the capture should be retried (transient errors).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates the capture should not be retried (permanent errors).
	ErrorClassFatal
	// ErrorClassUnknown indicates the error type cannot be determined.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	case ErrorClassUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// ClassifyCaptureError classifies streamlink/yt-dlp stderr output into
// retryable vs fatal categories.
//
// Fatal: auth required (subscriber-only, members-only, login required,
// 401/403), content gone (404, unavailable, removed), invalid input
// (unsupported URL), DRM.
//
// Retryable: network trouble (reset, timeout, DNS), server errors
// (500/502/503/504), rate limiting (429), HLS fragment errors, and anything
// unrecognized (the stream may still be live).
func ClassifyCaptureError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	lower := strings.ToLower(err.Error())

	// Server errors before the generic patterns: "service unavailable" must
	// not be swallowed by the "unavailable" content check below.
	if strings.Contains(lower, "500") ||
		strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "504") ||
		strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout") {
		return ErrorClassRetryable
	}

	// Auth and authorization
	if strings.Contains(lower, "subscriber-only") ||
		strings.Contains(lower, "members-only") ||
		strings.Contains(lower, "only available to subscribers") ||
		strings.Contains(lower, "must be logged into") ||
		strings.Contains(lower, "login required") ||
		strings.Contains(lower, "authentication required") ||
		strings.Contains(lower, "401") ||
		strings.Contains(lower, "403") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "unauthorized") {
		return ErrorClassFatal
	}

	// Content gone
	if (strings.Contains(lower, "video") && strings.Contains(lower, "unavailable")) ||
		(strings.Contains(lower, "stream") && strings.Contains(lower, "unavailable")) ||
		strings.Contains(lower, "404") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, "removed by the uploader") ||
		strings.Contains(lower, "no longer available") ||
		strings.Contains(lower, "does not exist") ||
		strings.Contains(lower, "unable to extract") {
		return ErrorClassFatal
	}

	// Invalid input
	for _, pattern := range []string{"invalid url", "malformed url", "unsupported url", "no plugin can handle url"} {
		if strings.Contains(lower, pattern) {
			return ErrorClassFatal
		}
	}

	// DRM
	for _, pattern := range []string{"drm protected", "protected content", "encrypted content"} {
		if strings.Contains(lower, pattern) {
			return ErrorClassFatal
		}
	}

	// Network
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"connection timed out",
		"timeout",
		"temporary failure in name resolution",
		"no route to host",
		"network unreachable",
		"dns",
		"eof",
		"broken pipe",
	} {
		if strings.Contains(lower, pattern) {
			return ErrorClassRetryable
		}
	}

	// Rate limiting
	for _, pattern := range []string{"429", "too many requests", "rate limit", "throttled"} {
		if strings.Contains(lower, pattern) {
			return ErrorClassRetryable
		}
	}

	// Incomplete capture
	for _, pattern := range []string{"partial content", "fragment", "incomplete download"} {
		if strings.Contains(lower, pattern) {
			return ErrorClassRetryable
		}
	}

	// Unknown errors are retried: the stream may still be live and giving up
	// early loses footage.
	return ErrorClassRetryable
}

// IsRetryableError checks if an error should trigger retry logic.
func IsRetryableError(err error) bool {
	return ClassifyCaptureError(err) == ErrorClassRetryable
}

// IsFatalError checks if an error should not be retried.
func IsFatalError(err error) bool {
	return ClassifyCaptureError(err) == ErrorClassFatal
}
