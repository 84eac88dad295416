// Command mergetracker is the main entrypoint for the server merge tracker.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the journal, seeds the aggregate store with hand-entered corrections and replays
//     the journal through the classifier.
//   - Connects to the Census push feed and collects until the collection deadline.
//   - Optionally exports standings to Postgres on an interval.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /standings, /events and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ps2assistant/mergetracker/census"
	"github.com/ps2assistant/mergetracker/config"
	"github.com/ps2assistant/mergetracker/db"
	"github.com/ps2assistant/mergetracker/export"
	"github.com/ps2assistant/mergetracker/journal"
	"github.com/ps2assistant/mergetracker/server"
	"github.com/ps2assistant/mergetracker/stream"
	"github.com/ps2assistant/mergetracker/telemetry"
	"github.com/ps2assistant/mergetracker/tracker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

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
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("mergetracker", version, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Journal. Without it nothing received can be made durable, so failing here is fatal.
	jr, err := journal.Open(cfg.JournalDir)
	if err != nil {
		slog.Error("failed to open journal", slog.Any("err", err), slog.String("dir", cfg.JournalDir))
		os.Exit(1)
	}
	defer func() {
		if err := jr.Close(); err != nil {
			slog.Error("failed to close journal", slog.Any("err", err))
		}
	}()

	// Aggregate store, seeded before replay
	store := tracker.NewStore()
	corrections, err := tracker.LoadCorrections(cfg.CorrectionsFile)
	if err != nil {
		slog.Error("failed to load corrections", slog.Any("err", err))
		os.Exit(1)
	}
	if err := store.Seed(corrections); err != nil {
		slog.Error("failed to apply corrections", slog.Any("err", err))
		os.Exit(1)
	}
	if n := corrections.Len(); n > 0 {
		slog.Info("corrections applied", slog.Int("events", n), slog.String("file", cfg.CorrectionsFile))
	}

	engine, err := tracker.NewEngine(store, cfg.Window(), tracker.WithIgnoreDuration(cfg.IgnoreDuration()))
	if err != nil {
		slog.Error("invalid collection window", slog.Any("err", err))
		os.Exit(1)
	}

	// Live collection is optional: without a service id the journal is replayed and served.
	var sup *stream.Supervisor
	if err := cfg.ValidateStreamReady(); err != nil {
		slog.Warn("live collection disabled", slog.Any("err", err))
	} else {
		sup, err = newSupervisor(cfg, jr, engine)
		if err != nil {
			slog.Error("failed to configure feed", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Optional Postgres standings export
	var database *sql.DB
	if cfg.ExportEnabled() {
		database = openDB(ctx, cfg.DBDsn)
	} else {
		slog.Info("standings export disabled (DB_DSN not set)")
	}

	// HTTP server (health/status/metrics)
	opts := server.Options{
		Store:              store,
		Groups:             tracker.DefaultGroups(),
		Window:             cfg.Window(),
		JournalPath:        jr.Path(),
		Corrections:        corrections.Len(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if sup != nil {
		opts.Stream = sup
	}
	if database != nil {
		opts.DB = database
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}
	handlers := server.NewHandlers(opts)
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, handlers); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	startPprof()

	// Replay the journal before the feed opens so the store reflects everything received so far.
	if jr.Existed() {
		stats, err := engine.Replay(ctx, jr.OpenForReplay())
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("shutting down during replay")
				return
			}
			slog.Error("journal replay failed", slog.Any("err", err), slog.String("path", jr.Path()))
			os.Exit(1)
		}
		slog.Info("journal replayed",
			slog.Int("lines", stats.Lines),
			slog.Int("captures", stats.Captures),
			slog.Int("alerts", stats.Alerts),
			slog.Int("retracted", stats.Retracted),
			slog.Duration("duration", stats.Duration))
		handlers.MarkReplayed(stats)
	} else {
		handlers.MarkReplayed(tracker.ReplayStats{})
	}
	telemetry.SetStoredEvents(store.Counts())

	if database != nil {
		go export.StartStandingsJob(ctx, database, store, tracker.DefaultGroups(), cfg.StandingsExportInterval)
	}

	supDone := make(chan struct{})
	if sup != nil {
		go func() {
			defer close(supDone)
			err := sup.Run(ctx)
			switch {
			case err == nil:
				slog.Info("feed collection finished")
			case errors.Is(err, stream.ErrReconnectExhausted):
				slog.Error("feed collection stopped, serving collected data", slog.Any("err", err))
			default:
				slog.Error("feed collection failed", slog.Any("err", err))
			}
			telemetry.SetStoredEvents(store.Counts())
		}()
	} else {
		close(supDone)
	}

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")

	// The supervisor syncs the journal on its way out; wait before closing it.
	select {
	case <-supDone:
	case <-time.After(5 * time.Second):
		slog.Warn("feed did not stop in time")
	}
}

func newSupervisor(cfg *config.Config, jr *journal.Journal, engine *tracker.Engine) (*stream.Supervisor, error) {
	url, err := cfg.StreamURL()
	if err != nil {
		return nil, err
	}
	sub, err := census.TrackerSubscription().Marshal()
	if err != nil {
		return nil, err
	}
	slog.Info("feed configured",
		slog.String("url", census.MaskURL(url)),
		slog.Time("deadline", cfg.CollectionDeadline))
	return stream.New(stream.Config{
		Dialer:       &stream.WebsocketDialer{URL: url, IdleTimeout: time.Minute},
		Journal:      jr,
		Classifier:   engine,
		Subscription: sub,
		Deadline:     cfg.CollectionDeadline,
		MaxAttempts:  cfg.ReconnectMaxAttempts,
		Backoff:      stream.LinearBackoff(cfg.ReconnectStep),
	})
}

// openDB connects and migrates the standings database. Failures disable the export instead of
// stopping collection.
func openDB(ctx context.Context, dsn string) *sql.DB {
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		slog.Warn("standings export disabled: database unavailable", slog.Any("err", err))
		return nil
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Prepare(ctx, database); err != nil {
		slog.Warn("standings export disabled: migrations failed", slog.Any("err", err))
		_ = database.Close()
		return nil
	}
	return database
}

// startPprof enables profiling endpoints in debug mode (ENABLE_PPROF=1).
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
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
