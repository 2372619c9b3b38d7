// Package config loads engine tuning from a YAML file and JOURNEY_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/journey/pkg/engine"
	"github.com/dukex/journey/pkg/nodes/call"
	"github.com/dukex/journey/pkg/nodes/webhook"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid engine configuration")

// Config holds the engine configuration.
type Config struct {
	Poller struct {
		Interval           time.Duration `mapstructure:"interval"`
		BatchSize          int           `mapstructure:"batch_size"`
		CycleBudget        time.Duration `mapstructure:"cycle_budget"`
		StaleSweepInterval time.Duration `mapstructure:"stale_sweep_interval"`
	} `mapstructure:"poller"`
	Scheduling struct {
		LoopWindow     time.Duration `mapstructure:"loop_window"`
		SpreadWindow   time.Duration `mapstructure:"spread_window"`
		PausedRecheck  time.Duration `mapstructure:"paused_recheck"`
		MaxInlineDepth int           `mapstructure:"max_inline_depth"`
	} `mapstructure:"scheduling"`
	Calls struct {
		Cooldown          time.Duration `mapstructure:"cooldown"`
		CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
		FallbackWindow    time.Duration `mapstructure:"fallback_window"`
	} `mapstructure:"calls"`
	Webhook struct {
		Timeout time.Duration `mapstructure:"timeout"`
		Retries int           `mapstructure:"retries"`
		Backoff time.Duration `mapstructure:"backoff"`
	} `mapstructure:"webhook"`
	Reschedule struct {
		QueueMax      int           `mapstructure:"queue_max"`
		FlushInterval time.Duration `mapstructure:"flush_interval"`
	} `mapstructure:"reschedule"`
	Cache struct {
		TTL  time.Duration `mapstructure:"ttl"`
		Size int           `mapstructure:"size"`
	} `mapstructure:"cache"`
}

func setDefaults(v *viper.Viper) {
	d := engine.DefaultOptions()

	v.SetDefault("poller.interval", d.PollInterval)
	v.SetDefault("poller.batch_size", d.BatchSize)
	v.SetDefault("poller.cycle_budget", d.CycleBudget)
	v.SetDefault("poller.stale_sweep_interval", d.StaleSweepInterval)

	v.SetDefault("scheduling.loop_window", d.LoopWindow)
	v.SetDefault("scheduling.spread_window", d.SpreadWindow)
	v.SetDefault("scheduling.paused_recheck", d.PausedRecheck)
	v.SetDefault("scheduling.max_inline_depth", d.MaxInlineDepth)

	v.SetDefault("calls.cooldown", d.CallCooldown)
	v.SetDefault("calls.completion_timeout", d.CallCompletionTimeout)
	v.SetDefault("calls.fallback_window", d.CallFallbackWindow)

	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.retries", 3)
	v.SetDefault("webhook.backoff", 2*time.Second)

	v.SetDefault("reschedule.queue_max", d.RescheduleQueueMax)
	v.SetDefault("reschedule.flush_interval", d.FlushInterval)

	v.SetDefault("cache.ttl", d.CacheTTL)
	v.SetDefault("cache.size", d.CacheSize)
}

// Load reads the file at path, when given, and applies JOURNEY_ environment
// overrides on top of the defaults. JOURNEY_POLLER_BATCH_SIZE overrides
// poller.batch_size.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("journey")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		err := v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to read engine config %s: %w", path, err)
		}
	}

	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode engine config: %w", err)
	}

	err = cfg.validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Poller.Interval <= 0:
		return fmt.Errorf("%w: poller.interval must be positive", ErrInvalidConfig)
	case c.Poller.BatchSize <= 0:
		return fmt.Errorf("%w: poller.batch_size must be positive", ErrInvalidConfig)
	case c.Poller.CycleBudget <= 0:
		return fmt.Errorf("%w: poller.cycle_budget must be positive", ErrInvalidConfig)
	case c.Scheduling.MaxInlineDepth <= 0:
		return fmt.Errorf("%w: scheduling.max_inline_depth must be positive", ErrInvalidConfig)
	case c.Webhook.Retries < 0:
		return fmt.Errorf("%w: webhook.retries cannot be negative", ErrInvalidConfig)
	case c.Reschedule.QueueMax <= 0:
		return fmt.Errorf("%w: reschedule.queue_max must be positive", ErrInvalidConfig)
	}

	return nil
}

func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		LoopWindow:            c.Scheduling.LoopWindow,
		CallCooldown:          c.Calls.Cooldown,
		CallCompletionTimeout: c.Calls.CompletionTimeout,
		CallFallbackWindow:    c.Calls.FallbackWindow,
		SpreadWindow:          c.Scheduling.SpreadWindow,
		PausedRecheck:         c.Scheduling.PausedRecheck,
		MaxInlineDepth:        c.Scheduling.MaxInlineDepth,
		PollInterval:          c.Poller.Interval,
		BatchSize:             c.Poller.BatchSize,
		CycleBudget:           c.Poller.CycleBudget,
		StaleSweepInterval:    c.Poller.StaleSweepInterval,
		FlushInterval:         c.Reschedule.FlushInterval,
		RescheduleQueueMax:    c.Reschedule.QueueMax,
		CacheTTL:              c.Cache.TTL,
		CacheSize:             c.Cache.Size,
	}
}

func (c *Config) WebhookOptions() webhook.Options {
	return webhook.Options{
		Timeout:    c.Webhook.Timeout,
		MaxRetries: c.Webhook.Retries,
		Backoff:    c.Webhook.Backoff,
	}
}

// CallOptions keeps an unfinished call blocking new ones for as long as the
// engine waits for its completion.
func (c *Config) CallOptions() call.Options {
	return call.Options{
		Cooldown:        c.Calls.Cooldown,
		InFlightTimeout: c.Calls.CompletionTimeout,
	}
}
