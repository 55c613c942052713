// Command server runs the kubiq monitoring engine.
//
// # Usage
//
//	server --database postgres://localhost/kubiq --port 8080
//
// # Configuration
//
// The server can be configured via:
// - Command-line flags
// - Environment variables (KUBIQ_*)
// - YAML config file (--config)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/internal/aggregator"
	"github.com/priyanshumodi22/kubiq-sub000/internal/api"
	"github.com/priyanshumodi22/kubiq-sub000/internal/buffer"
	"github.com/priyanshumodi22/kubiq-sub000/internal/cache"
	"github.com/priyanshumodi22/kubiq-sub000/internal/config"
	"github.com/priyanshumodi22/kubiq-sub000/internal/history"
	"github.com/priyanshumodi22/kubiq-sub000/internal/notify"
	"github.com/priyanshumodi22/kubiq-sub000/internal/probe"
	"github.com/priyanshumodi22/kubiq-sub000/internal/scheduler"
	"github.com/priyanshumodi22/kubiq-sub000/internal/state"
	"github.com/priyanshumodi22/kubiq-sub000/internal/store"
	"github.com/priyanshumodi22/kubiq-sub000/internal/tailer"
	"github.com/priyanshumodi22/kubiq-sub000/internal/worker"
	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// storeSnapshotSource adapts the record store to the scheduler's
// snapshot interface.
type storeSnapshotSource struct {
	store *store.Store
}

func (s *storeSnapshotSource) LoadSnapshot(ctx context.Context) (scheduler.Snapshot, error) {
	targets, err := s.store.ListTargets(ctx)
	if err != nil {
		return scheduler.Snapshot{}, err
	}
	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return scheduler.Snapshot{}, err
	}
	return scheduler.Snapshot{Targets: targets, Channels: channels}, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		port       = flag.Int("port", 0, "HTTP server port (overrides config)")
		dbURL      = flag.String("database", "", "Database URL (postgres://...)")
		redisURL   = flag.String("redis", "", "Redis URL (redis://...)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("kubiq-server v0.1.0")
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Load configuration: file, then env, then flags.
	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			logger.Error("failed to load config file", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.ApplyEnvOverrides()
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbURL != "" {
		cfg.Database.URL = *dbURL
	}
	if *redisURL != "" {
		cfg.Redis.URL = *redisURL
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Connect to database. The record store is required at boot.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bootCancel()

	db, err := store.NewStoreFromURL(bootCtx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(bootCtx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if err := store.Migrate(bootCtx, db.Pool(), logger); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Redis result buffer sits between checks and the database.
	resultBuffer, err := buffer.NewResultBuffer(cfg.Redis.URL, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer resultBuffer.Close()

	flusher := buffer.NewFlusher(resultBuffer, db.Pool(), logger)
	flusher.Start()

	// Response cache shares the Redis instance; losing it only costs
	// cache hits, so failure downgrades to uncached serving.
	var respCache *cache.Cache
	if c, err := cache.New(cfg.Redis.URL, logger); err != nil {
		logger.Warn("response cache unavailable, serving uncached", "error", err)
	} else {
		respCache = c
		defer respCache.Close()
	}

	// Core pipeline: prober -> history/state -> notifications.
	hist := history.NewStore(cfg.History.WindowSize)
	tracker := state.NewTracker(hist, 24*time.Hour)
	prober := probe.New(cfg.Schedule.ProbeTimeout)

	notifier := notify.New(notify.Config{
		MaxRetries:   cfg.Notify.MaxRetries,
		RetryBackoff: cfg.Notify.RetryBackoff,
		SendTimeout:  cfg.Notify.SendTimeout,
	}, logger,
		notify.NewWebhookSender(cfg.Notify.WebhookRatePerSec, cfg.Notify.WebhookBurst),
		notify.NewEmailSender(),
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	var sched *scheduler.Scheduler
	handleResult := func(result types.CheckResult) {
		hist.Append(result)

		pushCtx, pushCancel := context.WithTimeout(rootCtx, 5*time.Second)
		if err := resultBuffer.Push(pushCtx, result); err != nil {
			logger.Error("result buffering failed", "target", result.Target, "error", err)
		}
		pushCancel()

		if event, transitioned := tracker.Ingest(result); transitioned {
			notifier.Dispatch(rootCtx, event, sched.Channels())
		}
	}

	sched = scheduler.New(&storeSnapshotSource{store: db}, prober, handleResult, scheduler.Config{
		CheckInterval:  cfg.Schedule.CheckInterval,
		JitterFraction: cfg.Schedule.JitterFraction,
		ReloadInterval: cfg.Schedule.ReloadInterval,
	}, logger)
	sched.OnTargetRemoved(func(target string) {
		tracker.Remove(target)
		hist.Remove(target)
	})

	go func() {
		if err := sched.Run(rootCtx); err != nil {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	// Log streaming and read-side projections.
	tl := tailer.New(tailer.Config{
		InitialLines:     cfg.Tail.InitialLines,
		SubscriberBuffer: cfg.Tail.SubscriberBuffer,
		PollInterval:     cfg.Tail.PollInterval,
		DefaultMaxFiles:  cfg.Tail.DefaultMaxFiles,
	}, logger)

	agg := aggregator.New(tracker, hist, db, respCache, logger)

	retention := worker.NewRetentionWorker(db, worker.RetentionConfig{
		Interval: cfg.History.PruneInterval,
		MaxAge:   cfg.History.RetentionMaxAge,
		MaxCount: cfg.History.RetentionMaxCount,
	}, logger)
	retention.Start(rootCtx)

	// HTTP surface.
	apiServer := api.NewServer(db, sched, agg, tl, tracker, respCache, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	// Stop producing first, then drain: scheduler and tailer halt, the
	// notifier finishes in-flight deliveries, the flusher writes the
	// final batch, and only then does the HTTP listener close.
	rootCancel()
	tl.CloseAll()
	notifier.Wait()
	retention.Stop()
	flusher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
