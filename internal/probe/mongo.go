package probe

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// MongoChecker performs MongoDB liveness checks.
// Each check connects, pings the primary, and disconnects; no client is
// retained between checks.
type MongoChecker struct{}

// NewMongoChecker creates a MongoDB checker.
func NewMongoChecker() *MongoChecker {
	return &MongoChecker{}
}

// Kind implements Checker.
func (c *MongoChecker) Kind() types.CheckKind { return types.KindMongoDB }

// Check pings the deployment described by the target's connection string.
func (c *MongoChecker) Check(ctx context.Context, target types.ServiceTarget) types.CheckResult {
	opts := options.Client().ApplyURI(target.ConnString)
	if err := opts.Validate(); err != nil {
		return Failure(target.Name, types.FailureInvalidConfig, err)
	}

	start := time.Now()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return Failure(target.Name, Classify(err), err)
	}
	defer func() {
		// Disconnect regardless of ping outcome; bound it separately so
		// a cancelled check context cannot leak the connection.
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Disconnect(dctx)
	}()

	err = client.Ping(ctx, readpref.Primary())
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
