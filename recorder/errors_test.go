package recorder

import (
	"errors"
	"testing"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorClassRetryable, "retryable"},
		{ErrorClassFatal, "fatal"},
		{ErrorClassUnknown, "unknown"},
		{ErrorClass(999), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.class.String(); got != tt.want {
				t.Errorf("ErrorClass.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyCaptureError_Fatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"subscriber-only", errors.New("This video is subscriber-only")},
		{"members-only", errors.New("ERROR: This live stream is members-only")},
		{"must be logged in", errors.New("ERROR: You must be logged into an account")},
		{"login required", errors.New("login required to access this content")},
		{"401 unauthorized", errors.New("HTTP Error 401: Unauthorized")},
		{"403 forbidden", errors.New("HTTP Error 403: Forbidden")},
		{"404 not found", errors.New("HTTP Error 404: Not Found")},
		{"stream unavailable", errors.New("This stream is unavailable")},
		{"video unavailable", errors.New("Video unavailable")},
		{"removed", errors.New("This video has been removed by the uploader")},
		{"no longer available", errors.New("This video is no longer available")},
		{"unable to extract", errors.New("yt-dlp: unable to extract player response")},
		{"unsupported url", errors.New("Unsupported URL: https://example.com/x")},
		{"no plugin", errors.New("error: No plugin can handle URL: https://example.com/x")},
		{"drm", errors.New("this content is DRM protected")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyCaptureError(tt.err); got != ErrorClassFatal {
				t.Errorf("ClassifyCaptureError(%q) = %v, want fatal", tt.err, got)
			}
			if !IsFatalError(tt.err) {
				t.Errorf("IsFatalError(%q) = false", tt.err)
			}
		})
	}
}

func TestClassifyCaptureError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"connection reset", errors.New("read tcp: connection reset by peer")},
		{"connection refused", errors.New("dial tcp: connection refused")},
		{"timeout", errors.New("request timeout after 30s")},
		{"dns", errors.New("temporary failure in name resolution")},
		{"eof", errors.New("unexpected EOF")},
		{"500", errors.New("HTTP Error 500: Internal Server Error")},
		{"502", errors.New("HTTP Error 502: Bad Gateway")},
		{"503", errors.New("HTTP Error 503: Service Unavailable")},
		{"504", errors.New("HTTP Error 504: Gateway Timeout")},
		{"429", errors.New("HTTP Error 429: Too Many Requests")},
		{"rate limit", errors.New("rate limit exceeded, slow down")},
		{"fragment", errors.New("fragment 1042 not found, retrying")},
		{"unknown defaults retryable", errors.New("something odd happened")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyCaptureError(tt.err); got != ErrorClassRetryable {
				t.Errorf("ClassifyCaptureError(%q) = %v, want retryable", tt.err, got)
			}
			if !IsRetryableError(tt.err) {
				t.Errorf("IsRetryableError(%q) = false", tt.err)
			}
		})
	}
}

func TestClassifyCaptureError_Nil(t *testing.T) {
	if got := ClassifyCaptureError(nil); got != ErrorClassUnknown {
		t.Errorf("ClassifyCaptureError(nil) = %v, want unknown", got)
	}
}

// "Service Unavailable" is a 503, not a "stream unavailable": ordering matters.
func TestClassifyCaptureError_ServiceUnavailablePrecedence(t *testing.T) {
	err := errors.New("twitch.tv returned Service Unavailable")
	if got := ClassifyCaptureError(err); got != ErrorClassRetryable {
		t.Errorf("ClassifyCaptureError(%q) = %v, want retryable", err, got)
	}
}
