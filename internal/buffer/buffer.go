// Package buffer decouples check ingestion from Postgres writes. Every
// result lands in a Redis list first, so the engine keeps accepting
// checks while the database is slow or briefly down; the flusher drains
// the list into Postgres in batches.
package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// queueKey is the Redis list holding JSON-encoded results, newest at
// the head so the flusher pops oldest first.
const queueKey = "kubiq:check_results"

const (
	// DefaultBatchSize per flush pass; COPY absorbs large batches well.
	DefaultBatchSize = 5000

	// DefaultFlushInterval between flush passes.
	DefaultFlushInterval = 2 * time.Second
)

// ResultBuffer queues check results in Redis between the scheduler's
// result callback and the database flusher.
type ResultBuffer struct {
	client *redis.Client
	logger *slog.Logger
}

// NewResultBuffer connects to Redis and verifies the connection.
func NewResultBuffer(redisURL string, logger *slog.Logger) (*ResultBuffer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &ResultBuffer{
		client: client,
		logger: logger.With("component", "result_buffer"),
	}, nil
}

// Push queues results in arrival order. A result that cannot be
// encoded could never be flushed either, so it is logged and dropped
// rather than wedging the queue.
func (b *ResultBuffer) Push(ctx context.Context, results ...types.CheckResult) error {
	if len(results) == 0 {
		return nil
	}

	payloads := make([]any, 0, len(results))
	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			b.logger.Error("dropping unencodable check result",
				"target", r.Target, "error", err)
			continue
		}
		payloads = append(payloads, data)
	}
	if len(payloads) == 0 {
		return nil
	}

	if err := b.client.LPush(ctx, queueKey, payloads...).Err(); err != nil {
		return fmt.Errorf("buffering %d results: %w", len(payloads), err)
	}
	return nil
}

// Pop removes and returns up to max results, oldest first. Entries
// that no longer decode are skipped; they are already lost to the
// database either way.
func (b *ResultBuffer) Pop(ctx context.Context, max int) ([]types.CheckResult, error) {
	raw, err := b.client.RPopCount(ctx, queueKey, max).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("draining result queue: %w", err)
	}

	results := make([]types.CheckResult, 0, len(raw))
	for _, item := range raw {
		var r types.CheckResult
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			b.logger.Warn("skipping corrupt queue entry", "error", err)
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// Len returns the number of queued results.
func (b *ResultBuffer) Len(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, queueKey).Result()
}

// Close closes the Redis connection.
func (b *ResultBuffer) Close() error {
	return b.client.Close()
}
