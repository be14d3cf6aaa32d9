package monitor

import (
	"context"
	"time"

	"github.com/luoshu/livesaver/twitchapi"
	"github.com/luoshu/livesaver/youtubeapi"
)

// Status is one platform's live state at poll time. StreamID and Title are
// empty when the checker is a subprocess probe that can't see metadata.
type Status struct {
	Live      bool
	StreamID  string
	Title     string
	URL       string
	StartedAt time.Time
}

// Checker reports a platform's live status. Implementations wrap either a
// platform API client or a subprocess probe.
type Checker interface {
	Check(ctx context.Context) (Status, error)
}

// TwitchHelixChecker resolves live status through the Helix streams endpoint.
type TwitchHelixChecker struct {
	Client *twitchapi.HelixClient
	Login  string
}

func (c *TwitchHelixChecker) Check(ctx context.Context) (Status, error) {
	streams, err := c.Client.GetStreams(ctx, c.Login)
	if err != nil {
		return Status{}, err
	}
	if len(streams) == 0 {
		return Status{}, nil
	}
	s := streams[0]
	return Status{
		Live:      true,
		StreamID:  s.ID,
		Title:     s.Title,
		URL:       "https://www.twitch.tv/" + c.Login,
		StartedAt: s.StartedAt,
	}, nil
}

// TwitchProbeChecker resolves live status by asking streamlink whether the
// channel URL has playable streams. Used when no Helix credentials are set.
type TwitchProbeChecker struct {
	Probe *twitchapi.Probe
	URL   string
}

func (c *TwitchProbeChecker) Check(ctx context.Context) (Status, error) {
	live, err := c.Probe.Live(ctx, c.URL)
	if err != nil || !live {
		return Status{}, err
	}
	return Status{Live: true, URL: c.URL, StartedAt: time.Now().UTC()}, nil
}

// YouTubeAPIChecker resolves live status through the Data API live search.
type YouTubeAPIChecker struct {
	Client *youtubeapi.Checker
}

func (c *YouTubeAPIChecker) Check(ctx context.Context) (Status, error) {
	ls, err := c.Client.CheckLive(ctx)
	if err != nil {
		return Status{}, err
	}
	if ls == nil {
		return Status{}, nil
	}
	return Status{
		Live:      true,
		StreamID:  ls.VideoID,
		Title:     ls.Title,
		URL:       ls.URL(),
		StartedAt: time.Now().UTC(),
	}, nil
}

// YouTubeProbeChecker resolves live status via yt-dlp against the channel's
// /live URL. Used when no API key is configured.
type YouTubeProbeChecker struct {
	Client *youtubeapi.Checker
	URL    string
}

func (c *YouTubeProbeChecker) Check(ctx context.Context) (Status, error) {
	live, err := c.Client.ProbeLive(ctx, c.URL)
	if err != nil || !live {
		return Status{}, err
	}
	return Status{Live: true, URL: c.URL, StartedAt: time.Now().UTC()}, nil
}
