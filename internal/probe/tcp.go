package probe

import (
	"context"
	"net"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// TCPChecker performs raw TCP connection checks.
// Success means the connection was established within the timeout;
// no payload is exchanged.
type TCPChecker struct{}

// NewTCPChecker creates a TCP checker.
func NewTCPChecker() *TCPChecker {
	return &TCPChecker{}
}

// Kind implements Checker.
func (c *TCPChecker) Kind() types.CheckKind { return types.KindTCP }

// Check dials the target address and closes the connection immediately.
func (c *TCPChecker) Check(ctx context.Context, target types.ServiceTarget) types.CheckResult {
	var dialer net.Dialer

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", target.Address)
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		return Failure(target.Name, Classify(err), err)
	}
	conn.Close()

	return types.CheckResult{
		Target:    target.Name,
		Timestamp: time.Now().UTC(),
		Success:   true,
		LatencyMs: latency,
	}
}
