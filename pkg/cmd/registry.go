// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/journey/pkg/audio"
	"github.com/dukex/journey/pkg/cache"
	"github.com/dukex/journey/pkg/config"
	"github.com/dukex/journey/pkg/numberpool"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/providers/gateway"
	"github.com/dukex/journey/pkg/registry"
	"github.com/redis/go-redis/v9"
)

// NewRedis returns nil when redisURL is empty.
func NewRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return redis.NewClient(opts), nil
}

// NewRegistry registers every node executor, reaching the outside world
// through the gateway. Number-pool counters live in Redis when a client is
// given and in memory otherwise.
func NewRegistry(
	logger *slog.Logger,
	store persistence.Persistence,
	gw *gateway.Client,
	redisClient *redis.Client,
	cfg *config.Config,
) *registry.Registry {
	var counter numberpool.Counter = numberpool.NewMemoryCounter()
	if redisClient != nil {
		counter = numberpool.NewRedisCounter(redisClient)
	}

	opts := cfg.EngineOptions()
	webhook := cfg.WebhookOptions()

	return registry.NewDefault(logger, registry.Dependencies{
		Persistence: store,
		Compliance:  gw,
		Messenger:   gw,
		Telephony:   gw,
		Templates:   gw,
		Audio:       audio.NewResolver(logger, gw, gw, gw, cache.New[string](opts.CacheTTL, opts.CacheSize)),
		NumberPool:  numberpool.New(counter, time.Now),
		HTTPClient:  &http.Client{Timeout: webhook.Timeout},
		Webhook:     webhook,
		Call:        cfg.CallOptions(),
	})
}
