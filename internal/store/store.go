// Package store provides Postgres persistence for the engine.
//
// # Design
//
// The store uses raw SQL with pgx; no ORM. Lookups that find nothing
// return (nil, nil) rather than an error, so callers branch on the
// value and reserve errors for real faults.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// Store provides database operations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromURL creates a store by connecting to the given database URL.
func NewStoreFromURL(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping tests database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// SERVICE TARGETS
// =============================================================================

// CreateTarget inserts a new monitored target.
func (s *Store) CreateTarget(ctx context.Context, target *types.ServiceTarget) error {
	headersJSON, _ := json.Marshal(target.Headers)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service_targets (name, kind, url, method, headers, body, expected_status,
		                             skip_tls_verify, address, conn_string, interval_ms, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		target.Name, target.Kind, target.URL, target.Method, headersJSON, target.Body,
		target.ExpectedStatus, target.SkipTLSVerify, target.Address, target.ConnString,
		target.Interval.Milliseconds(), target.Enabled,
	)
	return err
}

// GetTarget retrieves a target by name.
func (s *Store) GetTarget(ctx context.Context, name string) (*types.ServiceTarget, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, kind, url, method, headers, body, expected_status,
		       skip_tls_verify, address, conn_string, interval_ms, enabled,
		       created_at, updated_at
		FROM service_targets WHERE name = $1
	`, name)

	target, err := scanTarget(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return target, nil
}

// ListTargets returns all targets ordered by name.
func (s *Store) ListTargets(ctx context.Context) ([]types.ServiceTarget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, kind, url, method, headers, body, expected_status,
		       skip_tls_verify, address, conn_string, interval_ms, enabled,
		       created_at, updated_at
		FROM service_targets ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []types.ServiceTarget
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, *target)
	}
	return targets, rows.Err()
}

// UpdateTarget updates an existing target.
func (s *Store) UpdateTarget(ctx context.Context, target *types.ServiceTarget) error {
	headersJSON, _ := json.Marshal(target.Headers)
	result, err := s.pool.Exec(ctx, `
		UPDATE service_targets SET
			kind = $2,
			url = $3,
			method = $4,
			headers = $5,
			body = $6,
			expected_status = $7,
			skip_tls_verify = $8,
			address = $9,
			conn_string = $10,
			interval_ms = $11,
			enabled = $12,
			updated_at = NOW()
		WHERE name = $1
	`, target.Name, target.Kind, target.URL, target.Method, headersJSON, target.Body,
		target.ExpectedStatus, target.SkipTLSVerify, target.Address, target.ConnString,
		target.Interval.Milliseconds(), target.Enabled)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("target not found: %s", target.Name)
	}
	return nil
}

// DeleteTarget removes a target and its stored results. Results still
// in the Redis buffer are dropped by the flusher's join.
func (s *Store) DeleteTarget(ctx context.Context, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `DELETE FROM service_targets WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("target not found: %s", name)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM check_results WHERE target = $1`, name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanTarget(row pgx.Row) (*types.ServiceTarget, error) {
	var target types.ServiceTarget
	var headersJSON []byte
	var intervalMs int64
	err := row.Scan(
		&target.Name, &target.Kind, &target.URL, &target.Method, &headersJSON, &target.Body,
		&target.ExpectedStatus, &target.SkipTLSVerify, &target.Address, &target.ConnString,
		&intervalMs, &target.Enabled, &target.CreatedAt, &target.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	target.Interval = time.Duration(intervalMs) * time.Millisecond
	json.Unmarshal(headersJSON, &target.Headers)
	return &target, nil
}

// =============================================================================
// NOTIFICATION CHANNELS
// =============================================================================

// CreateChannel inserts a notification channel.
func (s *Store) CreateChannel(ctx context.Context, ch *types.NotificationChannel) error {
	eventsJSON, _ := json.Marshal(ch.Events)
	var smtpJSON []byte
	if ch.SMTP != nil {
		smtpJSON, _ = json.Marshal(ch.SMTP)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_channels (id, name, kind, enabled, events, webhook_url, smtp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ch.ID, ch.Name, ch.Kind, ch.Enabled, eventsJSON, ch.WebhookURL, smtpJSON)
	return err
}

// GetChannel retrieves a channel by ID.
func (s *Store) GetChannel(ctx context.Context, id string) (*types.NotificationChannel, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, kind, enabled, events, webhook_url, smtp, created_at, updated_at
		FROM notification_channels WHERE id = $1
	`, id)

	ch, err := scanChannel(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// ListChannels returns all channels ordered by name.
func (s *Store) ListChannels(ctx context.Context) ([]types.NotificationChannel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, kind, enabled, events, webhook_url, smtp, created_at, updated_at
		FROM notification_channels ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []types.NotificationChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// UpdateChannel updates an existing channel.
func (s *Store) UpdateChannel(ctx context.Context, ch *types.NotificationChannel) error {
	eventsJSON, _ := json.Marshal(ch.Events)
	var smtpJSON []byte
	if ch.SMTP != nil {
		smtpJSON, _ = json.Marshal(ch.SMTP)
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE notification_channels SET
			name = $2,
			kind = $3,
			enabled = $4,
			events = $5,
			webhook_url = $6,
			smtp = $7,
			updated_at = NOW()
		WHERE id = $1
	`, ch.ID, ch.Name, ch.Kind, ch.Enabled, eventsJSON, ch.WebhookURL, smtpJSON)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("channel not found: %s", ch.ID)
	}
	return nil
}

// DeleteChannel removes a channel.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM notification_channels WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("channel not found: %s", id)
	}
	return nil
}

func scanChannel(row pgx.Row) (*types.NotificationChannel, error) {
	var ch types.NotificationChannel
	var eventsJSON, smtpJSON []byte
	var webhookURL *string
	err := row.Scan(
		&ch.ID, &ch.Name, &ch.Kind, &ch.Enabled, &eventsJSON, &webhookURL, &smtpJSON,
		&ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if webhookURL != nil {
		ch.WebhookURL = *webhookURL
	}
	json.Unmarshal(eventsJSON, &ch.Events)
	if len(smtpJSON) > 0 {
		var smtp types.SMTPConfig
		if json.Unmarshal(smtpJSON, &smtp) == nil {
			ch.SMTP = &smtp
		}
	}
	return &ch, nil
}

// =============================================================================
// LOG SOURCES
// =============================================================================

// CreateLogSource inserts a log source binding.
func (s *Store) CreateLogSource(ctx context.Context, src *types.LogSource) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO log_sources (id, service_name, display_name, pattern, max_files)
		VALUES ($1, $2, $3, $4, $5)
	`, src.ID, src.ServiceName, src.DisplayName, src.Pattern, src.MaxFiles)
	return err
}

// GetLogSource retrieves a log source by ID.
func (s *Store) GetLogSource(ctx context.Context, id string) (*types.LogSource, error) {
	var src types.LogSource
	err := s.pool.QueryRow(ctx, `
		SELECT id, service_name, display_name, pattern, max_files, created_at
		FROM log_sources WHERE id = $1
	`, id).Scan(&src.ID, &src.ServiceName, &src.DisplayName, &src.Pattern, &src.MaxFiles, &src.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// ListLogSources returns all log sources ordered by service name.
func (s *Store) ListLogSources(ctx context.Context) ([]types.LogSource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, service_name, display_name, pattern, max_files, created_at
		FROM log_sources ORDER BY service_name, display_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []types.LogSource
	for rows.Next() {
		var src types.LogSource
		if err := rows.Scan(&src.ID, &src.ServiceName, &src.DisplayName, &src.Pattern,
			&src.MaxFiles, &src.CreatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteLogSource removes a log source.
func (s *Store) DeleteLogSource(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM log_sources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("log source not found: %s", id)
	}
	return nil
}

// =============================================================================
// STATUS PAGES
// =============================================================================

// CreateStatusPage inserts a public status page definition.
func (s *Store) CreateStatusPage(ctx context.Context, page *types.StatusPage) error {
	namesJSON, _ := json.Marshal(page.ServiceNames)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO status_pages (slug, title, refresh_interval_ms, enabled, service_names)
		VALUES ($1, $2, $3, $4, $5)
	`, page.Slug, page.Title, page.RefreshInterval.Milliseconds(), page.Enabled, namesJSON)
	return err
}

// GetStatusPage retrieves a status page by slug.
func (s *Store) GetStatusPage(ctx context.Context, slug string) (*types.StatusPage, error) {
	var page types.StatusPage
	var namesJSON []byte
	var refreshMs int64
	err := s.pool.QueryRow(ctx, `
		SELECT slug, title, refresh_interval_ms, enabled, service_names, created_at, updated_at
		FROM status_pages WHERE slug = $1
	`, slug).Scan(&page.Slug, &page.Title, &refreshMs, &page.Enabled, &namesJSON,
		&page.CreatedAt, &page.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	page.RefreshInterval = time.Duration(refreshMs) * time.Millisecond
	json.Unmarshal(namesJSON, &page.ServiceNames)
	return &page, nil
}

// ListStatusPages returns all status pages ordered by slug.
func (s *Store) ListStatusPages(ctx context.Context) ([]types.StatusPage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slug, title, refresh_interval_ms, enabled, service_names, created_at, updated_at
		FROM status_pages ORDER BY slug
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []types.StatusPage
	for rows.Next() {
		var page types.StatusPage
		var namesJSON []byte
		var refreshMs int64
		if err := rows.Scan(&page.Slug, &page.Title, &refreshMs, &page.Enabled, &namesJSON,
			&page.CreatedAt, &page.UpdatedAt); err != nil {
			return nil, err
		}
		page.RefreshInterval = time.Duration(refreshMs) * time.Millisecond
		json.Unmarshal(namesJSON, &page.ServiceNames)
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// UpdateStatusPage updates an existing status page.
func (s *Store) UpdateStatusPage(ctx context.Context, page *types.StatusPage) error {
	namesJSON, _ := json.Marshal(page.ServiceNames)
	result, err := s.pool.Exec(ctx, `
		UPDATE status_pages SET
			title = $2,
			refresh_interval_ms = $3,
			enabled = $4,
			service_names = $5,
			updated_at = NOW()
		WHERE slug = $1
	`, page.Slug, page.Title, page.RefreshInterval.Milliseconds(), page.Enabled, namesJSON)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("status page not found: %s", page.Slug)
	}
	return nil
}

// DeleteStatusPage removes a status page.
func (s *Store) DeleteStatusPage(ctx context.Context, slug string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM status_pages WHERE slug = $1`, slug)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("status page not found: %s", slug)
	}
	return nil
}

// =============================================================================
// CHECK RESULTS
// =============================================================================

// GetResultHistory returns stored results for a target within the
// window, oldest first, capped at limit (0 = no cap).
func (s *Store) GetResultHistory(ctx context.Context, target string, window time.Duration, limit int) ([]types.CheckResult, error) {
	query := `
		SELECT time, target, success, status_code, latency_ms, error_message, failure_kind, cert
		FROM check_results
		WHERE target = $1 AND time > NOW() - $2::interval
		ORDER BY time ASC
	`
	args := []interface{}{target, window.String()}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.CheckResult
	for rows.Next() {
		var r types.CheckResult
		var statusCode *int
		var errMsg, failureKind *string
		var certJSON []byte
		if err := rows.Scan(&r.Timestamp, &r.Target, &r.Success, &statusCode,
			&r.LatencyMs, &errMsg, &failureKind, &certJSON); err != nil {
			return nil, err
		}
		if statusCode != nil {
			r.StatusCode = *statusCode
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		if failureKind != nil {
			r.Failure = types.FailureKind(*failureKind)
		}
		if len(certJSON) > 0 {
			var cert types.CertInfo
			if json.Unmarshal(certJSON, &cert) == nil {
				r.Cert = &cert
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// PruneStats reports what one retention pass removed.
type PruneStats struct {
	ByAge    int64 `json:"by_age"`
	ByCount  int64 `json:"by_count"`
	Orphaned int64 `json:"orphaned"`
}

// PruneResults enforces retention: rows older than maxAge go, each
// target keeps at most maxCount newest rows, and results whose target
// no longer exists are removed.
func (s *Store) PruneResults(ctx context.Context, maxAge time.Duration, maxCount int) (*PruneStats, error) {
	stats := &PruneStats{}

	if maxAge > 0 {
		result, err := s.pool.Exec(ctx, `
			DELETE FROM check_results WHERE time < NOW() - $1::interval
		`, maxAge.String())
		if err != nil {
			return nil, fmt.Errorf("pruning by age: %w", err)
		}
		stats.ByAge = result.RowsAffected()
	}

	if maxCount > 0 {
		result, err := s.pool.Exec(ctx, `
			DELETE FROM check_results cr
			USING (
				SELECT target, time,
				       ROW_NUMBER() OVER (PARTITION BY target ORDER BY time DESC) AS rn
				FROM check_results
			) ranked
			WHERE cr.target = ranked.target
			  AND cr.time = ranked.time
			  AND ranked.rn > $1
		`, maxCount)
		if err != nil {
			return nil, fmt.Errorf("pruning by count: %w", err)
		}
		stats.ByCount = result.RowsAffected()
	}

	result, err := s.pool.Exec(ctx, `
		DELETE FROM check_results cr
		WHERE NOT EXISTS (
			SELECT 1 FROM service_targets t WHERE t.name = cr.target
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("pruning orphans: %w", err)
	}
	stats.Orphaned = result.RowsAffected()

	return stats, nil
}
