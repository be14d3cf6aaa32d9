// Package monitor is the control loop: it polls live status for the configured
// Twitch and YouTube channels at a jittered interval and starts or stops
// recording sessions. Twitch preempts YouTube when both are live at once.
package monitor

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/luoshu/livesaver/chat"
	"github.com/luoshu/livesaver/config"
	"github.com/luoshu/livesaver/db"
	"github.com/luoshu/livesaver/recorder"
	"github.com/luoshu/livesaver/telemetry"
	"github.com/luoshu/livesaver/twitchapi"
	"github.com/luoshu/livesaver/youtubeapi"
)

// ChatStarter starts a chat recorder bound to a session; it blocks until the
// session context is canceled.
type ChatStarter func(ctx context.Context, dbc *sql.DB, channel string, sess *recorder.Session) error

// Monitor watches both platforms and owns the single active recording session.
// Zero-value checker/recorder fields disable the corresponding platform.
type Monitor struct {
	Cfg *config.Config
	DB  *sql.DB

	Twitch  Checker
	YouTube Checker

	TwitchVideo  recorder.Recorder
	YouTubeVideo recorder.Recorder
	YouTubeChat  recorder.Recorder
	StartChat    ChatStarter

	rng    *rand.Rand
	active *activeSession
}

type activeSession struct {
	sess   *recorder.Session
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires a monitor from config: Helix when client credentials are set,
// streamlink probing otherwise; the Data API when an API key is set, yt-dlp
// probing otherwise.
func New(cfg *config.Config, dbc *sql.DB) *Monitor {
	m := &Monitor{
		Cfg:       cfg,
		DB:        dbc,
		StartChat: chat.StartTwitchChatRecorder,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	opts := recorder.Options{
		DataDir:        cfg.DataDir,
		Quality:        cfg.Quality,
		StreamlinkPath: cfg.StreamlinkPath,
		YtDlpPath:      cfg.YtDlpPath,
		CookiesFile:    cfg.CookiesFile,
		MaxAttempts:    cfg.MaxAttempts,
		BackoffBase:    cfg.BackoffBase,
	}

	if cfg.TwitchChannel != "" {
		m.TwitchVideo = recorder.StreamlinkRecorder{Opts: opts}
		if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
			m.Twitch = &TwitchHelixChecker{
				Client: &twitchapi.HelixClient{
					AppTokenSource: &twitchapi.TokenSource{
						ClientID:     cfg.TwitchClientID,
						ClientSecret: cfg.TwitchClientSecret,
					},
					ClientID: cfg.TwitchClientID,
				},
				Login: cfg.TwitchChannel,
			}
		} else {
			m.Twitch = &TwitchProbeChecker{
				Probe: &twitchapi.Probe{Binary: cfg.StreamlinkPath},
				URL:   cfg.TwitchURL(),
			}
		}
	}

	if ytURL := cfg.YouTubeURL(); ytURL != "" {
		m.YouTubeVideo = recorder.YtDlpRecorder{Opts: opts}
		m.YouTubeChat = recorder.YtDlpRecorder{Opts: opts, CaptureChat: true}
		yc := &youtubeapi.Checker{
			APIKey:    cfg.YouTubeAPIKey,
			ChannelID: cfg.YouTubeChannelID,
			YtDlpPath: cfg.YtDlpPath,
		}
		if cfg.YouTubeAPIKey != "" && cfg.YouTubeChannelID != "" {
			m.YouTube = &YouTubeAPIChecker{Client: yc}
		} else {
			m.YouTube = &YouTubeProbeChecker{Client: yc, URL: ytURL}
		}
	}

	return m
}

// Run polls until ctx is canceled, then stops the active session and returns.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("monitor starting",
		slog.Bool("twitch", m.Twitch != nil),
		slog.Bool("youtube", m.YouTube != nil),
		slog.Duration("poll_min", m.Cfg.PollMin),
		slog.Duration("poll_max", m.Cfg.PollMax))
	for {
		m.cycle(ctx)
		select {
		case <-ctx.Done():
			m.stopActive("shutdown")
			slog.Info("monitor stopped")
			return
		case <-time.After(m.pollDelay()):
		}
	}
}

// cycle runs one poll iteration: reap a finished session, check both
// platforms, then start or switch captures as needed.
func (m *Monitor) cycle(ctx context.Context) {
	telemetry.PollCycles.Inc()
	m.reap()
	db.Heartbeat(ctx, m.DB, "monitor_heartbeat")

	var twitchSt, ytSt Status
	var twitchOK, ytOK bool
	if m.Twitch != nil {
		st, err := m.Twitch.Check(ctx)
		if err != nil {
			slog.Warn("twitch live check failed", slog.Any("err", err))
		} else {
			twitchSt, twitchOK = st, true
		}
		telemetry.SetLive(telemetry.TwitchLiveGauge, twitchSt.Live)
	}
	if m.YouTube != nil {
		st, err := m.YouTube.Check(ctx)
		if err != nil {
			slog.Warn("youtube live check failed", slog.Any("err", err))
		} else {
			ytSt, ytOK = st, true
		}
		telemetry.SetLive(telemetry.YouTubeLiveGauge, ytSt.Live)
	}

	// Stop the active session once its platform confirms offline. A failed
	// check is not confirmation; the capture subprocess also exits on its own
	// when the stream ends, which reap handles.
	if m.active != nil {
		p := m.active.sess.Platform
		if (p == "twitch" && twitchOK && !twitchSt.Live) || (p == "youtube" && ytOK && !ytSt.Live) {
			m.stopActive("stream offline")
		}
	}

	switch {
	case twitchSt.Live:
		if m.active != nil && m.active.sess.Platform == "youtube" {
			m.stopActive("twitch went live")
		}
		if m.active == nil {
			m.start(ctx, "twitch", twitchSt)
		}
	case ytSt.Live:
		if m.active == nil {
			m.start(ctx, "youtube", ytSt)
		}
	}
}

// reap clears the active slot if its capture goroutines have all returned
// (the stream ended and the subprocess exited on its own).
func (m *Monitor) reap() {
	if m.active == nil {
		return
	}
	select {
	case <-m.active.done:
		slog.Info("session finished", slog.String("session_id", m.active.sess.ID))
		m.active = nil
	default:
	}
}

func (m *Monitor) start(ctx context.Context, platform string, st Status) {
	videoRec := m.TwitchVideo
	if platform == "youtube" {
		videoRec = m.YouTubeVideo
	}
	if videoRec == nil {
		return
	}
	if err := os.MkdirAll(m.Cfg.DataDir, 0o755); err != nil {
		slog.Error("failed to create data dir", slog.Any("err", err))
		return
	}

	startedAt := st.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	sess := recorder.NewSession(platform, st.URL, startedAt, m.Cfg.DataDir)
	sess.StreamID = st.StreamID
	sess.Title = st.Title

	if _, err := m.DB.ExecContext(ctx, `
		INSERT INTO recordings (session_id, platform, stream_id, title, video_path, chat_path, state, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'recording', $7, NOW())`,
		sess.ID, sess.Platform, sess.StreamID, sess.Title, sess.VideoPath, sess.ChatPath, sess.StartedAt); err != nil {
		slog.Error("failed to insert recording row", slog.Any("err", err))
		return
	}

	logger := telemetry.LoggerWithCorr(telemetry.WithCorrelation(ctx, sess.ID)).With(
		slog.String("platform", platform),
		slog.String("session_id", sess.ID),
		slog.String("url", st.URL))
	logger.Info("stream live, starting capture", slog.String("title", st.Title))

	cctx, cancel := context.WithCancel(ctx)
	cctx = telemetry.WithCorrelation(cctx, sess.ID)
	done := make(chan struct{})
	m.active = &activeSession{sess: sess, cancel: cancel, done: done}
	telemetry.RecordingsStarted.Inc()
	telemetry.ActiveSessionsGauge.Inc()

	go func() {
		defer close(done)
		defer telemetry.ActiveSessionsGauge.Dec()

		var wg sync.WaitGroup
		if platform == "twitch" && m.StartChat != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.StartChat(cctx, m.DB, m.Cfg.TwitchChannel, sess); err != nil {
					logger.Warn("chat recorder failed", slog.Any("err", err))
				}
			}()
		}
		if platform == "youtube" && m.YouTubeChat != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.YouTubeChat.Record(cctx, m.DB, sess); err != nil {
					logger.Warn("youtube chat capture failed", slog.Any("err", err))
				}
			}()
		}

		if err := videoRec.Record(cctx, m.DB, sess); err != nil {
			logger.Error("video capture failed", slog.Any("err", err))
		}
		// The stream is over once video capture returns; stop companions.
		cancel()
		wg.Wait()
	}()
}

// stopActive cancels the running session and waits up to StopTimeout for its
// goroutines to flush and exit.
func (m *Monitor) stopActive(reason string) {
	if m.active == nil {
		return
	}
	a := m.active
	m.active = nil
	slog.Info("stopping session", slog.String("session_id", a.sess.ID), slog.String("reason", reason))
	a.cancel()

	timeout := m.Cfg.StopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-a.done:
	case <-time.After(timeout):
		slog.Warn("session did not stop in time", slog.String("session_id", a.sess.ID), slog.Duration("timeout", timeout))
	}
}

// pollDelay picks a uniformly random delay in [PollMin, PollMax] so polling
// doesn't hammer the platforms on a fixed beat.
func (m *Monitor) pollDelay() time.Duration {
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	min, max := m.Cfg.PollMin, m.Cfg.PollMax
	if min <= 0 {
		min = 7 * time.Second
	}
	if max < min {
		max = min
	}
	if max == min {
		return min
	}
	return min + time.Duration(m.rng.Int63n(int64(max-min)))
}
