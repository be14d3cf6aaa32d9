// Package youtubeapi answers whether the monitored YouTube channel is live.
// The primary path asks the YouTube Data API (search with eventType=live)
// using an API key; when no key is configured a yt-dlp subprocess probes the
// channel /live URL instead.
package youtubeapi

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// LiveStream describes the currently live broadcast of a channel.
type LiveStream struct {
	VideoID string
	Title   string
}

// Checker checks live status for a single channel.
type Checker struct {
	APIKey    string
	ChannelID string
	// YtDlpPath is the yt-dlp executable used by the probe fallback.
	YtDlpPath string
	// Endpoint overrides the YouTube API endpoint (tests).
	Endpoint string
}

// URL returns the watch URL for a live stream.
func (ls *LiveStream) URL() string {
	return "https://www.youtube.com/watch?v=" + ls.VideoID
}

// CheckLive queries the Data API for an active live broadcast on the channel.
// Returns nil when the channel is offline.
func (c *Checker) CheckLive(ctx context.Context) (*LiveStream, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("no YOUTUBE_API_KEY configured")
	}
	if c.ChannelID == "" {
		return nil, fmt.Errorf("no YOUTUBE_CHANNEL_ID configured")
	}
	opts := []option.ClientOption{option.WithAPIKey(c.APIKey)}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	resp, err := svc.Search.List([]string{"snippet"}).
		ChannelId(c.ChannelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube live search: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	item := resp.Items[0]
	if item.Id == nil || item.Id.VideoId == "" {
		return nil, nil
	}
	ls := &LiveStream{VideoID: item.Id.VideoId}
	if item.Snippet != nil {
		ls.Title = item.Snippet.Title
	}
	return ls, nil
}

// ProbeLive asks yt-dlp whether a URL is currently live, without downloading.
// yt-dlp prints the is_live field ("True"/"False"/"NA") under --print.
func (c *Checker) ProbeLive(ctx context.Context, url string) (bool, error) {
	bin := c.YtDlpPath
	if bin == "" {
		bin = "yt-dlp"
	}
	cmd := exec.CommandContext(ctx, bin,
		"--simulate",
		"--quiet", "--no-warnings",
		"--print", "is_live",
		url)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		// yt-dlp exits non-zero when the /live URL has no upcoming or
		// active broadcast; that's just "offline".
		return false, nil
	}
	return strings.EqualFold(strings.TrimSpace(stdout.String()), "true"), nil
}
