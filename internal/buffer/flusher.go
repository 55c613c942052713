package buffer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// Flusher reads from the Redis buffer and writes to Postgres.
type Flusher struct {
	buffer   *ResultBuffer
	pool     *pgxpool.Pool
	logger   *slog.Logger
	interval time.Duration
	batch    int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFlusher creates a new buffer flusher.
func NewFlusher(buffer *ResultBuffer, pool *pgxpool.Pool, logger *slog.Logger) *Flusher {
	return &Flusher{
		buffer:   buffer,
		pool:     pool,
		logger:   logger.With("component", "buffer_flusher"),
		interval: DefaultFlushInterval,
		batch:    DefaultBatchSize,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background flushing loop.
func (f *Flusher) Start() {
	f.wg.Add(1)
	go f.run()
	f.logger.Info("buffer flusher started", "interval", f.interval, "batch_size", f.batch)
}

// Stop stops the flusher and waits for completion.
func (f *Flusher) Stop() {
	close(f.stopCh)
	f.wg.Wait()
	f.logger.Info("buffer flusher stopped")
}

func (f *Flusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			// Final flush before stopping
			f.Flush()
			return
		case <-ticker.C:
			f.Flush()
		}
	}
}

// Flush drains one batch from the buffer into Postgres. Also called
// directly at shutdown for the final drain.
func (f *Flusher) Flush() {
	ctx := context.Background()

	size, err := f.buffer.Len(ctx)
	if err != nil {
		f.logger.Error("failed to get buffer size", "error", err)
		return
	}

	if size == 0 {
		return
	}

	results, err := f.buffer.Pop(ctx, f.batch)
	if err != nil {
		f.logger.Error("failed to pop from buffer", "error", err)
		return
	}

	if len(results) == 0 {
		return
	}

	start := time.Now()

	if err := f.copyResults(ctx, results); err != nil {
		f.logger.Error("failed to copy results to database",
			"error", err,
			"count", len(results),
		)
		// Push the batch back so a transient database fault does not
		// lose results. Order within the batch is not preserved, which
		// is fine for time-stamped rows.
		if perr := f.buffer.Push(ctx, results...); perr != nil {
			f.logger.Error("failed to requeue results", "error", perr, "count", len(results))
		}
		return
	}

	f.logger.Info("flushed results to database",
		"count", len(results),
		"remaining", size-int64(len(results)),
		"duration", time.Since(start),
	)
}

// copyResults uses PostgreSQL COPY via a temp table for high-throughput
// bulk inserts. The staging step allows duplicate ticks to be dropped
// with ON CONFLICT DO NOTHING.
func (f *Flusher) copyResults(ctx context.Context, results []types.CheckResult) error {
	tx, err := f.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		CREATE TEMP TABLE check_results_staging (
			time TIMESTAMPTZ NOT NULL,
			target TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			status_code INTEGER,
			latency_ms DOUBLE PRECISION,
			error_message TEXT,
			failure_kind TEXT,
			cert JSONB
		) ON COMMIT DROP
	`)
	if err != nil {
		return err
	}

	rows := make([][]any, len(results))
	for i, r := range results {
		rows[i] = []any{
			r.Timestamp, r.Target, r.Success, statusCode(r), r.LatencyMs,
			nullable(r.Error), nullable(string(r.Failure)), certJSON(r.Cert),
		}
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"check_results_staging"},
		[]string{"time", "target", "success", "status_code", "latency_ms", "error_message", "failure_kind", "cert"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return err
	}

	// Results for targets deleted mid-flight are dropped here; the
	// join keeps check_results free of orphans.
	_, err = tx.Exec(ctx, `
		INSERT INTO check_results (time, target, success, status_code, latency_ms, error_message, failure_kind, cert)
		SELECT s.time, s.target, s.success, s.status_code, s.latency_ms, s.error_message, s.failure_kind, s.cert
		FROM check_results_staging s
		JOIN service_targets t ON s.target = t.name
		ON CONFLICT (time, target) DO NOTHING
	`)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func statusCode(r types.CheckResult) *int {
	if r.StatusCode == 0 {
		return nil
	}
	return &r.StatusCode
}

func certJSON(cert *types.CertInfo) []byte {
	if cert == nil {
		return nil
	}
	data, err := json.Marshal(cert)
	if err != nil {
		return nil
	}
	return data
}
