package probe

import (
	"context"
	"database/sql"
	"time"

	// Registers the "mysql" driver with database/sql.
	_ "github.com/go-sql-driver/mysql"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// MySQLChecker performs MySQL liveness checks.
// Each check opens a fresh connection, pings, and closes it; no pool is
// retained between checks.
type MySQLChecker struct{}

// NewMySQLChecker creates a MySQL checker.
func NewMySQLChecker() *MySQLChecker {
	return &MySQLChecker{}
}

// Kind implements Checker.
func (c *MySQLChecker) Kind() types.CheckKind { return types.KindMySQL }

// Check pings the database described by the target's DSN.
func (c *MySQLChecker) Check(ctx context.Context, target types.ServiceTarget) types.CheckResult {
	db, err := sql.Open("mysql", target.ConnString)
	if err != nil {
		// sql.Open only validates the DSN; no I/O happens here.
		return Failure(target.Name, types.FailureInvalidConfig, err)
	}
	defer db.Close()

	// One short-lived connection per check.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)

	start := time.Now()
	err = db.PingContext(ctx)
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		return Failure(target.Name, Classify(err), err)
	}

	return types.CheckResult{
		Target:    target.Name,
		Timestamp: time.Now().UTC(),
		Success:   true,
		LatencyMs: latency,
	}
}
