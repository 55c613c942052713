// Package scheduler drives periodic health checks, one loop per target.
//
// # Design
//
// Every enabled target owns a goroutine with its own ticker, so a slow
// check against one target can never delay another. Checks themselves
// run on a separate goroutine guarded by an in-flight flag: when the
// next tick fires while the previous check is still running, that tick
// is skipped rather than queued, so the same target never has two
// overlapping checks.
//
// # Snapshot Reloads
//
// The scheduler reads one immutable configuration snapshot (targets +
// notification channels) per reload cycle. Adding, removing, or editing
// a target takes effect on the next reload tick; no restart is needed.
// Mutations in the configuration store become visible here eventually,
// not instantaneously.
//
// # Jitter
//
// Each loop delays its first check by a random fraction of its
// interval, spreading many same-interval targets across the period so
// they do not probe in lockstep.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// Prober executes one health check. Implementations never return an
// error; probe faults become failed CheckResults.
type Prober interface {
	Check(ctx context.Context, target types.ServiceTarget) types.CheckResult
}

// ResultHandler receives each completed check result.
type ResultHandler func(result types.CheckResult)

// Snapshot is one consistent view of the monitoring configuration.
type Snapshot struct {
	Targets  []types.ServiceTarget
	Channels []types.NotificationChannel
}

// SnapshotSource loads configuration snapshots from the durable store.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)
}

// RemovalHandler is told when a target disappears from the snapshot,
// so downstream state for it can be dropped.
type RemovalHandler func(target string)

// Config holds scheduler settings.
type Config struct {
	// CheckInterval is the global default between checks per target.
	CheckInterval time.Duration

	// JitterFraction spreads loop start offsets by up to this fraction
	// of the interval.
	JitterFraction float64

	// ReloadInterval is the snapshot refresh cadence.
	ReloadInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  60 * time.Second,
		JitterFraction: 0.1,
		ReloadInterval: 30 * time.Second,
	}
}

// Scheduler manages check loops for all targets.
type Scheduler struct {
	source    SnapshotSource
	prober    Prober
	handler   ResultHandler
	onRemoved RemovalHandler
	config    Config
	logger    *slog.Logger

	mu       sync.RWMutex
	loops    map[string]*targetLoop
	channels []types.NotificationChannel

	wg sync.WaitGroup
}

// targetLoop is the per-target scheduling state.
type targetLoop struct {
	mu     sync.RWMutex
	target types.ServiceTarget

	trigger chan struct{}
	cancel  context.CancelFunc

	inFlight atomic.Bool
	skipped  atomic.Int64
}

func (l *targetLoop) current() types.ServiceTarget {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.target
}

func (l *targetLoop) update(t types.ServiceTarget) {
	l.mu.Lock()
	l.target = t
	l.mu.Unlock()
}

// New creates a scheduler.
func New(source SnapshotSource, prober Prober, handler ResultHandler, config Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	if config.ReloadInterval <= 0 {
		config.ReloadInterval = DefaultConfig().ReloadInterval
	}
	return &Scheduler{
		source:  source,
		prober:  prober,
		handler: handler,
		config:  config,
		logger:  logger.With("component", "scheduler"),
		loops:   make(map[string]*targetLoop),
	}
}

// OnTargetRemoved registers a callback fired when a target leaves the
// snapshot. Must be called before Run.
func (s *Scheduler) OnTargetRemoved(fn RemovalHandler) {
	s.onRemoved = fn
}

// Run starts the scheduler and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		// Not fatal: the store may come back before the next cycle.
		s.logger.Error("initial snapshot load failed", "error", err)
	}

	ticker := time.NewTicker(s.config.ReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				s.logger.Error("snapshot reload failed", "error", err)
			}
		}
	}
}

// Reload fetches a fresh snapshot and reconciles target loops.
func (s *Scheduler) Reload(ctx context.Context) error {
	snap, err := s.source.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	// Validate up front; a malformed entry is skipped with a warning,
	// never allowed to halt the scheduling loop.
	valid := make(map[string]types.ServiceTarget, len(snap.Targets))
	for _, t := range snap.Targets {
		if !t.Enabled {
			continue
		}
		if err := t.Validate(); err != nil {
			s.logger.Warn("skipping invalid target", "target", t.Name, "error", err)
			continue
		}
		valid[t.Name] = t
	}

	s.mu.Lock()
	s.channels = snap.Channels

	var started, stopped, updated int
	for name, loop := range s.loops {
		target, ok := valid[name]
		if !ok {
			loop.cancel()
			delete(s.loops, name)
			stopped++
			if s.onRemoved != nil {
				s.onRemoved(name)
			}
			continue
		}
		if target.UpdatedAt != loop.current().UpdatedAt {
			updated++
		}
		loop.update(target)
	}
	for name, target := range valid {
		if _, ok := s.loops[name]; ok {
			continue
		}
		s.startLoop(ctx, target)
		started++
	}
	total := len(s.loops)
	s.mu.Unlock()

	if started > 0 || stopped > 0 || updated > 0 {
		s.logger.Info("snapshot applied",
			"targets", total,
			"started", started,
			"stopped", stopped,
			"updated", updated,
			"channels", len(snap.Channels))
	}
	return nil
}

// Channels returns the notification channels from the current snapshot.
func (s *Scheduler) Channels() []types.NotificationChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.NotificationChannel, len(s.channels))
	copy(out, s.channels)
	return out
}

// TriggerNow runs one extra check for a target immediately. The
// periodic cadence is not disturbed and the timer is not reset.
// Returns false when the target is not scheduled.
func (s *Scheduler) TriggerNow(name string) bool {
	s.mu.RLock()
	loop, ok := s.loops[name]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case loop.trigger <- struct{}{}:
	default:
		// A trigger is already pending; one manual check is enough.
	}
	return true
}

// TargetCount returns the number of scheduled targets.
func (s *Scheduler) TargetCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loops)
}

// startLoop launches the loop goroutine for one target.
// Caller must hold s.mu.
func (s *Scheduler) startLoop(ctx context.Context, target types.ServiceTarget) {
	loopCtx, cancel := context.WithCancel(ctx)
	loop := &targetLoop{
		target:  target,
		trigger: make(chan struct{}, 1),
		cancel:  cancel,
	}
	s.loops[target.Name] = loop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(loopCtx, loop)
	}()
}

// stopAll cancels every loop.
func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, loop := range s.loops {
		loop.cancel()
		delete(s.loops, name)
	}
}

// runLoop is the per-target scheduling loop.
func (s *Scheduler) runLoop(ctx context.Context, loop *targetLoop) {
	target := loop.current()
	interval := target.EffectiveInterval(s.config.CheckInterval)

	s.logger.Debug("starting check loop",
		"target", target.Name,
		"interval", interval)

	// Spread loop starts so many targets with the same interval do not
	// probe in lockstep.
	if s.config.JitterFraction > 0 {
		jitter := time.Duration(rand.Float64() * s.config.JitterFraction * float64(interval))
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter):
		}
	}

	s.runCheck(ctx, loop)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("stopping check loop", "target", loop.current().Name)
			return
		case <-ticker.C:
			current := loop.current()
			if next := current.EffectiveInterval(s.config.CheckInterval); next != interval {
				interval = next
				ticker.Reset(interval)
			}
			s.runCheck(ctx, loop)
		case <-loop.trigger:
			s.runCheck(ctx, loop)
		}
	}
}

// runCheck executes one check unless the previous one is still running,
// in which case the tick is skipped.
func (s *Scheduler) runCheck(ctx context.Context, loop *targetLoop) {
	target := loop.current()

	if !loop.inFlight.CompareAndSwap(false, true) {
		loop.skipped.Add(1)
		s.logger.Warn("previous check still running, skipping tick",
			"target", target.Name,
			"skipped", loop.skipped.Load())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer loop.inFlight.Store(false)

		result := s.prober.Check(ctx, target)
		if s.handler != nil {
			s.handler(result)
		}
	}()
}
