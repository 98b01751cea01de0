package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/config"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
)

// Client wraps a RedLock manager. Recomputes are idempotent, so the lock is
// about wasted work across replicas, not correctness.
type Client struct {
	lockManager *redlock.RedLock
	redisAddrs  []string
}

// New creates new Redis client with RedLock support
func New(cfg *config.RedisConfig) (*Client, error) {
	addr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	// Single instance for now; a Redis cluster would list every node here
	redisAddrs := []string{addr}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lockManager, err := redlock.NewRedLock(ctx, redisAddrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	logger.Info("redis redlock manager initialized",
		zap.Strings("addresses", redisAddrs),
	)

	return &Client{
		lockManager: lockManager,
		redisAddrs:  redisAddrs,
	}, nil
}

// NewComputeLock creates a lock scoped to the recompute job
func (c *Client) NewComputeLock(ttl time.Duration) *ComputeLock {
	return NewComputeLock(c.lockManager, ttl)
}

// Close is a no-op today; kept so callers can defer symmetrically with the
// database connections.
func (c *Client) Close() error {
	return nil
}
