// Package worker - background maintenance loops for the engine.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/internal/store"
)

// RetentionConfig holds configuration for the retention worker.
type RetentionConfig struct {
	// Interval between pruning passes.
	Interval time.Duration

	// MaxAge drops results older than this. Zero disables age pruning.
	MaxAge time.Duration

	// MaxCount caps stored results per target. Zero disables the cap.
	MaxCount int
}

// DefaultRetentionConfig returns sensible defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Interval: 15 * time.Minute,
		MaxAge:   30 * 24 * time.Hour,
		MaxCount: 100000,
	}
}

// RetentionWorker periodically enforces check result retention:
// age-based and per-target count-based pruning, plus removal of
// results whose target has been deleted.
type RetentionWorker struct {
	store  *store.Store
	config RetentionConfig
	logger *slog.Logger
	stopCh chan struct{}
}

// NewRetentionWorker creates a retention worker.
func NewRetentionWorker(st *store.Store, config RetentionConfig, logger *slog.Logger) *RetentionWorker {
	return &RetentionWorker{
		store:  st,
		config: config,
		logger: logger.With("component", "retention_worker"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the worker in a goroutine.
func (w *RetentionWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to stop.
func (w *RetentionWorker) Stop() {
	close(w.stopCh)
}

func (w *RetentionWorker) run(ctx context.Context) {
	w.logger.Info("retention worker started",
		"interval", w.config.Interval,
		"max_age", w.config.MaxAge,
		"max_count", w.config.MaxCount,
	)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retention worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("retention worker stopping (stop signal)")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RetentionWorker) runOnce(ctx context.Context) {
	start := time.Now()
	stats, err := w.store.PruneResults(ctx, w.config.MaxAge, w.config.MaxCount)
	if err != nil {
		w.logger.Error("retention pruning failed", "error", err)
		return
	}

	total := stats.ByAge + stats.ByCount + stats.Orphaned
	if total == 0 {
		w.logger.Debug("retention pass found nothing to prune")
		return
	}
	w.logger.Info("retention pruning complete",
		"by_age", stats.ByAge,
		"by_count", stats.ByCount,
		"orphaned", stats.Orphaned,
		"duration", time.Since(start),
	)
}
