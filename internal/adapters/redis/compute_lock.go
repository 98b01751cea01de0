package redis

import (
	"context"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
)

const lockName = "aibps:lock:recompute"

// ComputeLock keeps the monthly recompute single-flight across replicas
// using the Redlock algorithm.
type ComputeLock struct {
	lockManager *redlock.RedLock
	ttl         time.Duration
	locked      bool
}

// NewComputeLock creates a recompute lock with the given TTL. The TTL should
// comfortably exceed one full recompute; there is no background renewal.
func NewComputeLock(lockManager *redlock.RedLock, ttl time.Duration) *ComputeLock {
	return &ComputeLock{
		lockManager: lockManager,
		ttl:         ttl,
	}
}

// TryAcquire attempts to take the recompute lock. Returns false when another
// replica already holds it, which is not an error: that replica will produce
// the identical artifact.
func (cl *ComputeLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := cl.lockManager.Lock(ctx, lockName, cl.ttl)
	if err != nil || expiry <= 0 {
		logger.Debug("recompute lock held elsewhere",
			zap.String("lock", lockName),
		)
		return false, nil
	}

	cl.locked = true
	logger.Info("recompute lock acquired",
		zap.String("lock", lockName),
		zap.Duration("ttl", cl.ttl),
	)
	return true, nil
}

// Release releases the lock; safe to call when it was never acquired
func (cl *ComputeLock) Release(ctx context.Context) error {
	if !cl.locked {
		return nil
	}

	if err := cl.lockManager.UnLock(ctx, lockName); err != nil {
		// The lock may have expired on its own; the next run re-acquires
		logger.Warn("failed to release recompute lock",
			zap.String("lock", lockName),
			zap.Error(err),
		)
	}

	cl.locked = false
	return nil
}
