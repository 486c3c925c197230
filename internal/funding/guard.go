package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	guardPrefix  = "crowdfund:submit:"
	guardPending = "pending"
)

// Guard stops the same logical submission from being broadcast twice
type Guard interface {
	// Acquire claims key. A held key yields *DuplicateSubmissionError.
	Acquire(ctx context.Context, key string) error
	// Complete records the transaction a key produced. The claim is kept.
	Complete(ctx context.Context, key, txHash string) error
	// Release frees key so the submission can be retried.
	Release(ctx context.Context, key string) error
}

type redisGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisGuard(client redis.Cmdable, ttl time.Duration) Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisGuard{client: client, ttl: ttl}
}

func (g *redisGuard) Acquire(ctx context.Context, key string) error {
	ok, err := g.client.SetNX(ctx, guardPrefix+key, guardPending, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire submission guard: %w", err)
	}
	if ok {
		return nil
	}

	dup := &DuplicateSubmissionError{Key: key}
	held, err := g.client.Get(ctx, guardPrefix+key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read submission guard: %w", err)
	}
	if strings.HasPrefix(held, "0x") {
		dup.TxHash = held
	}
	return dup
}

func (g *redisGuard) Complete(ctx context.Context, key, txHash string) error {
	if err := g.client.SetArgs(ctx, guardPrefix+key, txHash, redis.SetArgs{KeepTTL: true}).Err(); err != nil {
		return fmt.Errorf("failed to complete submission guard: %w", err)
	}
	return nil
}

func (g *redisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, guardPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release submission guard: %w", err)
	}
	return nil
}
