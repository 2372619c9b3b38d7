package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	c := cache.New[string](time.Minute, 10)

	assert.True(t, c.Set("a", "1"))

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	c.Delete("a")

	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCache_Bounded(t *testing.T) {
	c := cache.New[int](time.Minute, 2)

	assert.True(t, c.Set("a", 1))
	assert.True(t, c.Set("b", 2))
	assert.False(t, c.Set("c", 3))
	assert.Equal(t, 2, c.Len())
}

func TestCache_Expires(t *testing.T) {
	c := cache.New[int](20*time.Millisecond, 10)
	c.Set("a", 1)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("a")

		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCache_GetOrLoad(t *testing.T) {
	c := cache.New[string](time.Minute, 10)
	calls := 0

	load := func(context.Context) (string, error) {
		calls++

		return "loaded", nil
	}

	for range 3 {
		v, err := c.GetOrLoad(context.Background(), "k", load)
		require.NoError(t, err)
		assert.Equal(t, "loaded", v)
	}

	assert.Equal(t, 1, calls)

	_, err := c.GetOrLoad(context.Background(), "bad", func(context.Context) (string, error) {
		return "", errors.New("boom")
	})
	require.Error(t, err)

	_, ok := c.Get("bad")
	assert.False(t, ok)
}
