package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// runLockTTL caps how long a crashed run can keep the lock. It must
	// exceed the runner's own timeout so a healthy run never loses its
	// lock mid-flight.
	runLockTTL = 3 * time.Minute

	runLockKey = "scheduler:run-lock"
)

// RunLock serializes scheduler runs across processes using SET NX. The
// daily trigger can fire twice (external cron plus a manual invocation);
// only one run proceeds, the other reports "already in progress".
type RunLock struct {
	client *Client
	logger *zap.Logger
}

// NewRunLock creates a RunLock.
func NewRunLock(client *Client, logger *zap.Logger) *RunLock {
	return &RunLock{
		client: client,
		logger: logger,
	}
}

// Acquire attempts to take the lock. Returns false when another run holds it.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	set, err := l.client.rdb.SetNX(ctx, runLockKey, time.Now().UTC().Format(time.RFC3339), runLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if set {
		l.logger.Debug("run lock acquired")
	} else {
		l.logger.Info("run lock held by another run")
	}

	return set, nil
}

// Release frees the lock. Safe to call after TTL expiry; releasing a lock
// this process no longer holds is harmless because runs are idempotent at
// the ledger level anyway.
func (l *RunLock) Release(ctx context.Context) error {
	if err := l.client.rdb.Del(ctx, runLockKey).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	l.logger.Debug("run lock released")
	return nil
}
