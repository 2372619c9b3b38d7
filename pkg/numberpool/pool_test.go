package numberpool_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/numberpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func fixedNow() time.Time {
	return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
}

func TestPool_SelectIsDeterministic(t *testing.T) {
	pool := numberpool.New(numberpool.NewMemoryCounter(), fixedNow)
	numbers := []models.SendingNumber{{Number: "+1001"}, {Number: "+1002"}, {Number: "+1003"}}

	first, err := pool.Select(context.Background(), "t1", "contact-9", numbers)
	require.NoError(t, err)

	for range 5 {
		again, err := pool.Select(context.Background(), "t1", "contact-9", numbers)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPool_SkipsCappedNumbers(t *testing.T) {
	ctx := context.Background()
	pool := numberpool.New(numberpool.NewMemoryCounter(), fixedNow)
	numbers := []models.SendingNumber{{Number: "+1001", DailyCap: 1}, {Number: "+1002", DailyCap: 1}}

	first, err := pool.Select(ctx, "t1", "contact-1", numbers)
	require.NoError(t, err)
	require.NoError(t, pool.Record(ctx, "t1", first))

	second, err := pool.Select(ctx, "t1", "contact-1", numbers)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	require.NoError(t, pool.Record(ctx, "t1", second))

	_, err = pool.Select(ctx, "t1", "contact-1", numbers)
	assert.ErrorIs(t, err, numberpool.ErrAllNumbersCapped)

	// Caps are per tenant.
	_, err = pool.Select(ctx, "t2", "contact-1", numbers)
	assert.NoError(t, err)
}

func TestPool_EmptyPool(t *testing.T) {
	pool := numberpool.New(numberpool.NewMemoryCounter(), fixedNow)

	number, err := pool.Select(context.Background(), "t1", "c", nil)
	require.NoError(t, err)
	assert.Empty(t, number)
}

func TestMemoryCounter_ExpiresDays(t *testing.T) {
	ctx := context.Background()
	counter := numberpool.NewMemoryCounterTTL(50 * time.Millisecond)

	require.NoError(t, counter.Increment(ctx, "t1:+15550001:2024-01-01"))
	require.NoError(t, counter.Increment(ctx, "t1:+15550001:2024-01-01"))

	n, err := counter.Count(ctx, "t1:+15550001:2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Eventually(t, func() bool { return counter.Len() == 0 }, time.Second, 10*time.Millisecond)

	n, err = counter.Count(ctx, "t1:+15550001:2024-01-01")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, counter.Increment(ctx, "t1:+15550001:2024-01-01"))

	n, err = counter.Count(ctx, "t1:+15550001:2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisCounter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	counter := numberpool.NewRedisCounter(client)

	n, err := counter.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, counter.Increment(ctx, "k"))
	require.NoError(t, counter.Increment(ctx, "k"))

	n, err = counter.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
