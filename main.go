// Command livesaver watches one streamer's Twitch and YouTube channels and
// records their live broadcasts. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the monitor loop that polls live status with jitter, launches
//     streamlink/yt-dlp captures and the chat recorder, and the retention job.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status,
//     /recordings, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/luoshu/livesaver/config"
	"github.com/luoshu/livesaver/db"
	"github.com/luoshu/livesaver/monitor"
	"github.com/luoshu/livesaver/recorder"
	"github.com/luoshu/livesaver/server"
	"github.com/luoshu/livesaver/telemetry"
	"github.com/luoshu/livesaver/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) { // text | json
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if cfg.TwitchChannel == "" && cfg.YouTubeURL() == "" {
		slog.Error("nothing to watch: set TWITCH_CHANNEL and/or YOUTUBE_CHANNEL_ID (or YOUTUBE_LIVE_URL)")
		os.Exit(1)
	}

	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("livesaver", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Best-effort: fetch a Twitch app access token (client-credentials) if
	// client id/secret provided. Used for Helix live polling, not IRC chat.
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		ctx2, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		if tok, err := (&twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}).Get(ctx2); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
		}
		cancel()
	}

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Persist chat credentials so later runs work without the env vars, and
	// recover cookies from storage when COOKIES_FILE is unset.
	if err := db.SeedCredentialsFromEnv(context.Background(), database); err != nil {
		slog.Warn("credential seeding failed", slog.Any("err", err))
	}
	if cfg.CookiesFile == "" {
		if path, err := db.MaterializeCookies(context.Background(), database, cfg.DataDir); err != nil {
			slog.Warn("stored cookies unavailable", slog.Any("err", err))
		} else if path != "" {
			slog.Info("using stored cookies", slog.String("path", path))
			cfg.CookiesFile = path
		}
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("authenticated chat unavailable, chat capture will be anonymous", slog.Any("reason", err))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go monitor.New(cfg, database).Run(ctx)
	go recorder.StartRetentionJob(ctx, database)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, database, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	// Give the monitor a moment to stop the active capture and flush state.
	time.Sleep(cfg.StopTimeout)
}
