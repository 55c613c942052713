// Package probe executes health checks against service targets.
//
// # Design Principles
//
//  1. Interface Segregation: Small, focused interface that all checkers implement
//  2. Bounded Execution: Every check runs under a hard timeout and always
//     produces a CheckResult; a checker never hangs or panics its caller
//  3. Failure Taxonomy: Errors are classified (timeout, connection refused,
//     TLS, protocol, invalid config) so callers can surface them distinctly
//
// # Adding New Checkers
//
// To add a new check kind:
//
//  1. Create a new file (e.g. grpc.go) implementing the Checker interface
//  2. Register the checker in the registry
//
// Example:
//
//	type GRPCChecker struct { /* ... */ }
//	func (c *GRPCChecker) Kind() types.CheckKind { return "grpc" }
//	func (c *GRPCChecker) Check(ctx, target) types.CheckResult { /* ... */ }
//
//	// In engine startup:
//	registry.Register(&GRPCChecker{})
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// DefaultTimeout is the hard bound on a single check when the caller
// supplies none.
const DefaultTimeout = 10 * time.Second

// Checker is the interface all check kinds implement.
type Checker interface {
	// Kind returns the check kind this checker handles.
	Kind() types.CheckKind

	// Check runs one health check. The context carries the hard
	// timeout; implementations must honor it and must return a failed
	// result rather than an error for any probe-level fault.
	Check(ctx context.Context, target types.ServiceTarget) types.CheckResult
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry manages available checkers.
type Registry struct {
	checkers map[types.CheckKind]Checker
	mu       sync.RWMutex
}

// NewRegistry creates an empty checker registry.
func NewRegistry() *Registry {
	return &Registry{
		checkers: make(map[types.CheckKind]Checker),
	}
}

// Register adds a checker to the registry.
// Returns an error if the kind is already registered.
func (r *Registry) Register(c Checker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := c.Kind()
	if _, exists := r.checkers[kind]; exists {
		return fmt.Errorf("checker already registered: %s", kind)
	}
	r.checkers[kind] = c
	return nil
}

// Get returns the checker for a kind.
func (r *Registry) Get(kind types.CheckKind) (Checker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checkers[kind]
	return c, ok
}

// Kinds returns the registered check kinds.
func (r *Registry) Kinds() []types.CheckKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]types.CheckKind, 0, len(r.checkers))
	for k := range r.checkers {
		kinds = append(kinds, k)
	}
	return kinds
}

// =============================================================================
// PROBER
// =============================================================================

// Prober dispatches checks to registered checkers under a hard timeout.
type Prober struct {
	registry *Registry
	timeout  time.Duration
}

// New creates a prober with all built-in checkers registered.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	registry := NewRegistry()
	registry.Register(NewHTTPChecker())
	registry.Register(NewTCPChecker())
	registry.Register(NewMySQLChecker())
	registry.Register(NewMongoChecker())
	return &Prober{registry: registry, timeout: timeout}
}

// NewWithRegistry creates a prober over a caller-supplied registry.
func NewWithRegistry(registry *Registry, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{registry: registry, timeout: timeout}
}

// Check runs one health check against the target. It always returns a
// result: configuration problems and unknown kinds become failed
// results with FailureInvalidConfig, probe faults become failed results
// with their classified failure kind.
func (p *Prober) Check(ctx context.Context, target types.ServiceTarget) types.CheckResult {
	if err := target.Validate(); err != nil {
		return Failure(target.Name, types.FailureInvalidConfig, err)
	}

	checker, ok := p.registry.Get(target.Kind)
	if !ok {
		return Failure(target.Name, types.FailureInvalidConfig,
			fmt.Errorf("no checker registered for kind %q", target.Kind))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result := checker.Check(ctx, target)
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	if result.Target == "" {
		result.Target = target.Name
	}
	return result
}

// Failure builds a failed CheckResult from a classified error.
func Failure(target string, kind types.FailureKind, err error) types.CheckResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return types.CheckResult{
		Target:    target,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Failure:   kind,
		Error:     msg,
	}
}

// Classify maps a probe error to a failure kind.
func Classify(err error) types.FailureKind {
	if err == nil {
		return ""
	}

	var certErr *tls.CertificateVerificationError
	var recErr tls.RecordHeaderError
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	var invErr x509.CertificateInvalidError
	switch {
	case errors.As(err, &certErr),
		errors.As(err, &recErr),
		errors.As(err, &hostErr),
		errors.As(err, &authErr),
		errors.As(err, &invErr):
		return types.FailureTLS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.FailureTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return types.FailureConnectionRefused
	}

	return types.FailureProtocol
}
