package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "recordings" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "recordings")
	}
	if cfg.Quality != "best" {
		t.Errorf("Quality = %q, want %q", cfg.Quality, "best")
	}
	if cfg.PollMin != 7*time.Second || cfg.PollMax != 17*time.Second {
		t.Errorf("poll window = [%s, %s], want [7s, 17s]", cfg.PollMin, cfg.PollMax)
	}
	if cfg.StopTimeout != 5*time.Second {
		t.Errorf("StopTimeout = %s, want 5s", cfg.StopTimeout)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.StreamlinkPath != "streamlink" || cfg.YtDlpPath != "yt-dlp" {
		t.Errorf("binary paths = %q/%q, want streamlink/yt-dlp", cfg.StreamlinkPath, cfg.YtDlpPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/rec")
	t.Setenv("STREAM_QUALITY", "720p")
	t.Setenv("POLL_INTERVAL_MIN", "10s")
	t.Setenv("POLL_INTERVAL_MAX", "30s")
	t.Setenv("CAPTURE_MAX_ATTEMPTS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/tmp/rec" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Quality != "720p" {
		t.Errorf("Quality = %q", cfg.Quality)
	}
	if cfg.PollMin != 10*time.Second || cfg.PollMax != 30*time.Second {
		t.Errorf("poll window = [%s, %s]", cfg.PollMin, cfg.PollMax)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
}

func TestLoadInvalidPollWindow(t *testing.T) {
	t.Setenv("POLL_INTERVAL_MIN", "30s")
	t.Setenv("POLL_INTERVAL_MAX", "10s")
	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for inverted poll window")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("STOP_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for invalid STOP_TIMEOUT")
	}
}

func TestURLs(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		twitch  string
		youtube string
	}{
		{
			name:    "empty",
			cfg:     Config{},
			twitch:  "",
			youtube: "",
		},
		{
			name:    "channel derived",
			cfg:     Config{TwitchChannel: "somecaster", YouTubeChannelID: "UCabc123"},
			twitch:  "https://www.twitch.tv/somecaster",
			youtube: "https://www.youtube.com/channel/UCabc123/live",
		},
		{
			name:    "explicit youtube url wins",
			cfg:     Config{YouTubeChannelID: "UCabc123", YouTubeLiveURL: "https://www.youtube.com/watch?v=xyz"},
			youtube: "https://www.youtube.com/watch?v=xyz",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.TwitchURL(); got != tt.twitch {
				t.Errorf("TwitchURL() = %q, want %q", got, tt.twitch)
			}
			if got := tt.cfg.YouTubeURL(); got != tt.youtube {
				t.Errorf("YouTubeURL() = %q, want %q", got, tt.youtube)
			}
		})
	}
}

func TestValidateChatReady(t *testing.T) {
	c := &Config{}
	if err := c.ValidateChatReady(); err == nil {
		t.Fatal("expected error with no creds")
	}
	c = &Config{TwitchChannel: "c", TwitchBotUsername: "b", TwitchOAuthToken: "oauth:x"}
	if err := c.ValidateChatReady(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
