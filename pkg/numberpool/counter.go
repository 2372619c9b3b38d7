package numberpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// counterTTL keeps a day's counter around long enough to cover any timezone.
const counterTTL = 48 * time.Hour

// MemoryCounter keeps counts in process. Keys expire counterTTL after their
// first increment, so past days do not accumulate.
type MemoryCounter struct {
	mu     sync.Mutex
	counts *gocache.Cache
}

func NewMemoryCounter() *MemoryCounter {
	return newMemoryCounter(counterTTL)
}

func newMemoryCounter(ttl time.Duration) *MemoryCounter {
	return &MemoryCounter{counts: gocache.New(ttl, ttl/2)}
}

func (m *MemoryCounter) Count(_ context.Context, key string) (int, error) {
	v, found := m.counts.Get(key)
	if !found {
		return 0, nil
	}

	n, _ := v.(int)

	return n, nil
}

func (m *MemoryCounter) Increment(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.counts.IncrementInt(key, 1); err != nil {
		m.counts.SetDefault(key, 1)
	}

	return nil
}

// RedisCounter shares counts between engine processes.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Count(ctx context.Context, key string) (int, error) {
	n, err := r.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	return n, nil
}

func (r *RedisCounter) Increment(ctx context.Context, key string) error {
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis incr %s: %w", key, err)
	}

	return nil
}
