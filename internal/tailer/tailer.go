// Package tailer streams log files to live subscribers.
//
// # Subscription Lifecycle
//
// Subscribe resolves the source pattern to candidate files ranked
// newest first, opens the top candidate, and delivers an opened event
// followed by an initial batch of trailing lines. After that the file
// is followed live: fsnotify wakes the loop on writes, with a polling
// tick as a safety net for filesystems that drop notifications.
//
// # Rotation
//
// Truncation, replacement of the open file, and a newer glob match are
// all reported as rotation signals naming the candidate file. The
// stream deliberately stays on the original handle until the
// subscriber calls Switch; an operator reading an incident log must
// never have the file swapped out from under them mid-read.
//
// # Slow Subscribers
//
// Events go through a bounded channel per subscription. When the
// subscriber falls behind, the oldest buffered event is dropped so the
// stream stays live rather than stalling the tailer.
package tailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// ErrNoCandidate - Switch was called with no rotation signal pending.
var ErrNoCandidate = errors.New("no rotation candidate pending")

// Config holds tailer settings.
type Config struct {
	// InitialLines is the size of the trailing batch sent on subscribe.
	InitialLines int

	// SubscriberBuffer is the event channel capacity per subscription.
	SubscriberBuffer int

	// PollInterval is the fallback scan cadence when notifications are
	// missed, and the cadence for glob re-resolution.
	PollInterval time.Duration

	// DefaultMaxFiles caps glob candidates when the source sets none.
	DefaultMaxFiles int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialLines:     100,
		SubscriberBuffer: 256,
		PollInterval:     2 * time.Second,
		DefaultMaxFiles:  20,
	}
}

// Tailer manages live log subscriptions.
type Tailer struct {
	config Config
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

// New creates a tailer.
func New(config Config, logger *slog.Logger) *Tailer {
	def := DefaultConfig()
	if config.InitialLines <= 0 {
		config.InitialLines = def.InitialLines
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = def.SubscriberBuffer
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.DefaultMaxFiles <= 0 {
		config.DefaultMaxFiles = def.DefaultMaxFiles
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tailer{
		config: config,
		logger: logger.With("component", "tailer"),
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe opens a live stream for a log source. The returned
// subscription's event channel already holds the opened event and the
// initial line batch.
func (t *Tailer) Subscribe(source types.LogSource) (*Subscription, error) {
	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("invalid log source: %w", err)
	}

	maxFiles := source.MaxFiles
	if maxFiles <= 0 {
		maxFiles = t.config.DefaultMaxFiles
	}
	candidates, err := resolve(source.Pattern, maxFiles)
	if err != nil {
		return nil, err
	}
	active := candidates[0]

	file, err := openLogFile(active.Path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", active.Path, err)
	}
	initial, offset, err := tailLines(file, t.config.InitialLines)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading initial batch: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		ID:       uuid.New().String(),
		Source:   source,
		maxFiles: maxFiles,
		events:   make(chan types.StreamEvent, t.config.SubscriberBuffer),
		tailer:   t,
		file:     file,
		openInfo: info,
		path:     active.Path,
		offset:   offset,
		signaled: make(map[string]bool),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	sub.logger = t.logger.With("subscription", sub.ID, "source", source.ServiceName)

	// Watch the directory, not the file: rename and recreate events
	// are only visible on the parent. Failure is tolerated because the
	// poll tick covers everything the watcher would.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		sub.logger.Warn("fsnotify unavailable, polling only", "error", err)
	} else if err := watcher.Add(filepath.Dir(active.Path)); err != nil {
		sub.logger.Warn("directory watch failed, polling only",
			"dir", filepath.Dir(active.Path), "error", err)
		watcher.Close()
		watcher = nil
	}
	sub.watcher = watcher

	t.mu.Lock()
	t.subs[sub.ID] = sub
	t.mu.Unlock()

	sub.emit(types.StreamEvent{
		Kind:           types.StreamOpened,
		SubscriptionID: sub.ID,
		Timestamp:      time.Now(),
		File:           active.Path,
	})
	if len(initial) > 0 {
		sub.emit(types.StreamEvent{
			Kind:           types.StreamLines,
			SubscriptionID: sub.ID,
			Timestamp:      time.Now(),
			File:           active.Path,
			Lines:          initial,
		})
	}

	go sub.run(ctx, t.config.PollInterval)

	sub.logger.Info("subscription opened",
		"file", active.Path,
		"candidates", len(candidates),
		"initial_lines", len(initial))
	return sub, nil
}

// Get looks up a live subscription by ID.
func (t *Tailer) Get(id string) (*Subscription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.subs[id]
	return sub, ok
}

// SubscriptionCount returns the number of live subscriptions.
func (t *Tailer) SubscriptionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// CloseAll terminates every subscription. Used at shutdown.
func (t *Tailer) CloseAll() {
	t.mu.Lock()
	subs := make([]*Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (t *Tailer) remove(id string) {
	t.mu.Lock()
	delete(t.subs, id)
	t.mu.Unlock()
}

func openLogFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return file, nil
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Subscription is one live stream over a log source.
type Subscription struct {
	ID     string
	Source types.LogSource

	maxFiles int
	events   chan types.StreamEvent
	logger   *slog.Logger
	tailer   *Tailer
	watcher  *fsnotify.Watcher

	mu       sync.Mutex
	file     *os.File
	openInfo os.FileInfo
	path     string
	offset   int64
	carry    []byte
	pending  string
	halted   bool
	signaled map[string]bool

	dropped   atomic.Int64
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the subscriber's event channel. It is closed after
// the terminal closed event.
func (s *Subscription) Events() <-chan types.StreamEvent {
	return s.events
}

// ActiveFile returns the file currently being streamed.
func (s *Subscription) ActiveFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Switch moves the stream to the pending rotation candidate. The new
// file is read from the beginning; an opened event announces it.
func (s *Subscription) Switch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == "" {
		return ErrNoCandidate
	}
	candidate := s.pending

	file, err := openLogFile(candidate)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat %s: %w", candidate, err)
	}

	s.file.Close()
	s.file = file
	s.openInfo = info
	s.path = candidate
	s.offset = 0
	s.carry = nil
	s.pending = ""
	s.halted = false
	s.signaled = make(map[string]bool)

	if s.watcher != nil {
		// Same directory adds are no-ops; a candidate in a new
		// directory needs its own watch.
		if err := s.watcher.Add(filepath.Dir(candidate)); err != nil {
			s.logger.Warn("watch after switch failed", "error", err)
		}
	}

	s.emit(types.StreamEvent{
		Kind:           types.StreamOpened,
		SubscriptionID: s.ID,
		Timestamp:      time.Now(),
		File:           candidate,
	})
	s.logger.Info("switched to rotation candidate", "file", candidate)
	return nil
}

// Close terminates the subscription and releases the file handle and
// watch immediately. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.tailer.remove(s.ID)
	})
}

// run is the follow loop.
func (s *Subscription) run(ctx context.Context, pollInterval time.Duration) {
	defer close(s.done)

	var watchEvents chan fsnotify.Event
	var watchErrors chan error
	if s.watcher != nil {
		watchEvents = s.watcher.Events
		watchErrors = s.watcher.Errors
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return

		case ev, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			if s.relevant(ev) {
				s.scan(false)
			}

		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			s.logger.Warn("watcher error", "error", err)

		case <-ticker.C:
			s.scan(true)
		}
	}
}

// relevant reports whether a watcher event concerns the active file.
func (s *Subscription) relevant(ev fsnotify.Event) bool {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()
	return ev.Name == path &&
		ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

// scan reads newly appended lines and checks for rotation. Glob
// re-resolution only happens on poll ticks; it stats the filesystem
// and has no notification to piggyback on.
func (s *Subscription) scan(checkGlob bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hstat, err := s.file.Stat()
	if err != nil {
		s.streamError(fmt.Errorf("stat open handle: %w", err))
		return
	}

	if hstat.Size() < s.offset {
		// The open handle shrank underneath us. The read offset now
		// points into bytes that no longer exist; announce the
		// rewritten file and hold all reads until Switch. Without the
		// hold, a rewrite that grows past the stale offset would
		// deliver mid-file fragments of the new content.
		s.halted = true
		s.signal(types.RotationTruncated, s.path)
	} else if hstat.Size() > s.offset && !s.halted {
		s.readAppended(hstat.Size())
	}

	if pstat, err := os.Stat(s.path); err == nil {
		if !os.SameFile(pstat, s.openInfo) {
			s.signal(types.RotationReplaced, s.path)
		}
	}

	if checkGlob && hasGlobMeta(s.Source.Pattern) {
		if candidates, err := resolve(s.Source.Pattern, s.maxFiles); err == nil {
			if top := candidates[0]; top.Path != s.path {
				s.signal(types.RotationNewerMatch, top.Path)
			}
		}
	}
}

// readAppended delivers complete lines between the read offset and
// size. Caller holds s.mu.
func (s *Subscription) readAppended(size int64) {
	data := make([]byte, size-s.offset)
	n, err := s.file.ReadAt(data, s.offset)
	if err != nil && err != io.EOF {
		s.streamError(fmt.Errorf("reading %s: %w", s.path, err))
		return
	}
	s.offset += int64(n)

	lines, carry := splitLines(s.carry, data[:n])
	s.carry = carry
	if len(lines) == 0 {
		return
	}

	s.emit(types.StreamEvent{
		Kind:           types.StreamLines,
		SubscriptionID: s.ID,
		Timestamp:      time.Now(),
		File:           s.path,
		Lines:          lines,
	})
}

// signal raises one rotation event per candidate. Caller holds s.mu.
func (s *Subscription) signal(reason types.RotationReason, candidate string) {
	if s.signaled[candidate] {
		return
	}
	s.signaled[candidate] = true
	s.pending = candidate

	s.emit(types.StreamEvent{
		Kind:           types.StreamRotation,
		SubscriptionID: s.ID,
		Timestamp:      time.Now(),
		File:           s.path,
		Candidate:      candidate,
		Reason:         reason,
	})
	s.logger.Info("rotation detected",
		"reason", reason,
		"candidate", candidate)
}

// streamError reports a stream fault to this subscriber only. Caller
// holds s.mu.
func (s *Subscription) streamError(err error) {
	s.logger.Warn("stream error", "error", err)
	s.emit(types.StreamEvent{
		Kind:           types.StreamError,
		SubscriptionID: s.ID,
		Timestamp:      time.Now(),
		Error:          err.Error(),
	})
}

// shutdown emits the terminal event and releases resources.
func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emit(types.StreamEvent{
		Kind:           types.StreamClosed,
		SubscriptionID: s.ID,
		Timestamp:      time.Now(),
	})
	close(s.events)

	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn("subscription closed with dropped events", "dropped", n)
	}
	s.logger.Info("subscription closed")
}

// emit delivers an event, dropping the oldest buffered event when the
// subscriber is not keeping up.
func (s *Subscription) emit(event types.StreamEvent) {
	for {
		select {
		case s.events <- event:
			return
		default:
		}
		select {
		case <-s.events:
			s.dropped.Add(1)
		default:
		}
	}
}
