// Package aggregator computes read-side projections: fleet totals,
// public status pages, and engine self-stats.
//
// Status page projections expose only what a public page needs. An
// unknown or disabled slug is indistinguishable from a missing one, so
// the existence of internal pages never leaks.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/priyanshumodi22/kubiq-sub000/internal/cache"
	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// ErrPageNotFound - slug does not resolve to a visible status page.
var ErrPageNotFound = errors.New("status page not found")

// historyPoints is the number of recent results shown per service on a
// status page.
const historyPoints = 50

// engineStatsTTL caches gopsutil sampling between overview calls.
const engineStatsTTL = 30 * time.Second

// StateSource provides live service states.
type StateSource interface {
	States() []types.ServiceState
}

// HistorySource provides recent in-memory results per target.
type HistorySource interface {
	Query(target string, limit int) []types.CheckResult
}

// PageSource loads status page definitions.
type PageSource interface {
	GetStatusPage(ctx context.Context, slug string) (*types.StatusPage, error)
}

// FleetOverview is the aggregate view across all monitored targets.
type FleetOverview struct {
	TotalTargets     int         `json:"total_targets"`
	Healthy          int         `json:"healthy"`
	Unhealthy        int         `json:"unhealthy"`
	Unknown          int         `json:"unknown"`
	HealthPercentage float64     `json:"health_percentage"`
	Engine           EngineStats `json:"engine"`
	GeneratedAt      time.Time   `json:"generated_at"`
}

// EngineStats describes the engine process itself.
type EngineStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// HistoryPoint is one check result on a status page timeline.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	LatencyMs float64   `json:"latency_ms"`
}

// ServiceSummary is the public view of one service on a status page.
type ServiceSummary struct {
	Name          string         `json:"name"`
	Status        types.Status   `json:"current_status"`
	UptimePercent float64        `json:"uptime_percent"`
	History       []HistoryPoint `json:"history"`
}

// PageView is a rendered public status page.
type PageView struct {
	Slug            string           `json:"slug"`
	Title           string           `json:"title"`
	RefreshInterval int              `json:"refresh_interval_seconds"`
	Services        []ServiceSummary `json:"services"`
	LastUpdated     time.Time        `json:"last_updated"`
}

// Aggregator builds projections from live state and page definitions.
type Aggregator struct {
	states  StateSource
	history HistorySource
	pages   PageSource
	cache   *cache.Cache // nil disables caching
	logger  *slog.Logger

	startTime time.Time

	mu          sync.RWMutex
	cachedStats *EngineStats
	statsExpiry time.Time
}

// New creates an aggregator. cache may be nil.
func New(states StateSource, history HistorySource, pages PageSource, c *cache.Cache, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		states:    states,
		history:   history,
		pages:     pages,
		cache:     c,
		logger:    logger.With("component", "aggregator"),
		startTime: time.Now(),
	}
}

// Overview returns fleet totals plus engine self-stats.
func (a *Aggregator) Overview(ctx context.Context) *FleetOverview {
	overview := &FleetOverview{GeneratedAt: time.Now()}

	for _, state := range a.states.States() {
		overview.TotalTargets++
		switch state.Status {
		case types.StatusHealthy:
			overview.Healthy++
		case types.StatusUnhealthy:
			overview.Unhealthy++
		default:
			overview.Unknown++
		}
	}

	// Targets still warming up are excluded from the health ratio; an
	// engine that just started should not report 0% health.
	decided := overview.Healthy + overview.Unhealthy
	if decided > 0 {
		overview.HealthPercentage = float64(overview.Healthy) / float64(decided) * 100.0
	} else {
		overview.HealthPercentage = 100.0
	}

	overview.Engine = a.engineStats()
	return overview
}

// Page renders the public projection for a status page slug.
func (a *Aggregator) Page(ctx context.Context, slug string) (*PageView, error) {
	if a.cache != nil {
		var cached PageView
		hit, err := a.cache.GetStatusPage(ctx, slug, &cached)
		if err != nil {
			a.logger.Warn("status page cache read failed", "slug", slug, "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	page, err := a.pages.GetStatusPage(ctx, slug)
	if err != nil {
		return nil, err
	}
	if page == nil || !page.Enabled {
		return nil, ErrPageNotFound
	}

	view := a.render(page)

	if a.cache != nil {
		if err := a.cache.SetStatusPage(ctx, slug, view, page.RefreshInterval); err != nil {
			a.logger.Warn("status page cache write failed", "slug", slug, "error", err)
		}
	}
	return view, nil
}

// render builds the projection from live state. A service name with no
// state (deleted target still listed on the page) renders as unknown
// rather than failing the whole page.
func (a *Aggregator) render(page *types.StatusPage) *PageView {
	byName := make(map[string]types.ServiceState)
	for _, state := range a.states.States() {
		byName[state.Target] = state
	}

	view := &PageView{
		Slug:            page.Slug,
		Title:           page.Title,
		RefreshInterval: int(page.RefreshInterval.Seconds()),
		Services:        make([]ServiceSummary, 0, len(page.ServiceNames)),
		LastUpdated:     time.Now(),
	}

	for _, name := range page.ServiceNames {
		summary := ServiceSummary{Name: name, Status: types.StatusUnknown}
		if state, ok := byName[name]; ok {
			summary.Status = state.Status
			summary.UptimePercent = state.UptimePercent
			for _, r := range a.history.Query(name, historyPoints) {
				summary.History = append(summary.History, HistoryPoint{
					Timestamp: r.Timestamp,
					Success:   r.Success,
					LatencyMs: r.LatencyMs,
				})
			}
		}
		view.Services = append(view.Services, summary)
	}
	return view
}

// engineStats samples process stats with a short cache; gopsutil calls
// stat the proc filesystem and are too heavy per request.
func (a *Aggregator) engineStats() EngineStats {
	a.mu.RLock()
	if a.cachedStats != nil && time.Now().Before(a.statsExpiry) {
		stats := *a.cachedStats
		a.mu.RUnlock()
		stats.Goroutines = runtime.NumGoroutine()
		stats.UptimeSeconds = int64(time.Since(a.startTime).Seconds())
		return stats
	}
	a.mu.RUnlock()

	stats := EngineStats{
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(a.startTime).Seconds()),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			stats.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
		if memPct, err := proc.MemoryPercent(); err == nil {
			stats.MemoryPercent = float64(memPct)
		}
	}

	a.mu.Lock()
	a.cachedStats = &stats
	a.statsExpiry = time.Now().Add(engineStatsTTL)
	a.mu.Unlock()

	return stats
}
