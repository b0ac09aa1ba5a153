// Package ratelimit provides sliding-window limiters used to throttle calls
// to the calculation engine. The memory limiter bounds a single process; the
// Redis limiter bounds every replica sharing the same Redis.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"busbar/pkg/config"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrLimiterClosed     = errors.New("limiter is closed")
)

// Limiter limits events per key over a sliding window.
type Limiter interface {
	// Allow records one event for key if the window has room.
	Allow(ctx context.Context, key string) (bool, error)
	// Wait blocks until an event for key is allowed or ctx is done.
	Wait(ctx context.Context, key string) error
	// GetInfo reports the window state of key.
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)
	Close() error
}

// LimitInfo describes the state of one key.
type LimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Config configures a limiter.
type Config struct {
	Requests        int
	Window          time.Duration
	Backend         string // memory, redis
	CleanupInterval time.Duration
	RetryInterval   time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
}

// DefaultConfig returns a memory limiter configuration.
func DefaultConfig() *Config {
	return &Config{
		Requests:        30,
		Window:          time.Minute,
		Backend:         "memory",
		CleanupInterval: 5 * time.Minute,
		RetryInterval:   100 * time.Millisecond,
	}
}

// FromConfig builds a limiter configuration from the engine settings.
func FromConfig(cfg *config.RateLimitConfig) *Config {
	c := DefaultConfig()
	if cfg.Requests > 0 {
		c.Requests = cfg.Requests
	}
	if cfg.Window > 0 {
		c.Window = cfg.Window
	}
	if cfg.CleanupInterval > 0 {
		c.CleanupInterval = cfg.CleanupInterval
	}
	if cfg.Backend != "" {
		c.Backend = cfg.Backend
	}
	c.RedisAddr = cfg.RedisAddr
	return c
}

// New creates a limiter for the configured backend.
func New(cfg *Config) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "redis":
		return NewRedisLimiter(cfg)
	default:
		return NewMemoryLimiter(cfg), nil
	}
}

func waitLoop(ctx context.Context, interval time.Duration, allow func() (bool, error)) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	for {
		allowed, err := allow()
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
