package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process sliding-window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	config  *Config
	stopCh  chan struct{}
	closed  bool
	now     func() time.Time
}

// NewMemoryLimiter creates a memory limiter and starts its cleanup loop.
func NewMemoryLimiter(cfg *Config) *MemoryLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &MemoryLimiter{
		windows: make(map[string][]time.Time),
		config:  cfg,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go l.cleanupLoop(interval)

	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false, ErrLimiterClosed
	}

	now := l.now()
	events := l.prune(key, now)
	if len(events) >= l.config.Requests {
		return false, nil
	}

	l.windows[key] = append(events, now)
	return true, nil
}

func (l *MemoryLimiter) Wait(ctx context.Context, key string) error {
	return waitLoop(ctx, l.config.RetryInterval, func() (bool, error) {
		return l.Allow(ctx, key)
	})
}

func (l *MemoryLimiter) GetInfo(ctx context.Context, key string) (*LimitInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLimiterClosed
	}

	now := l.now()
	events := l.prune(key, now)

	info := &LimitInfo{
		Limit:     l.config.Requests,
		Remaining: max(l.config.Requests-len(events), 0),
		ResetAt:   now,
	}
	if len(events) > 0 {
		info.ResetAt = events[0].Add(l.config.Window)
	}
	return info, nil
}

func (l *MemoryLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	close(l.stopCh)
	l.windows = nil

	return nil
}

// prune drops events outside the window. Must be called with l.mu held.
func (l *MemoryLimiter) prune(key string, now time.Time) []time.Time {
	events := l.windows[key]
	windowStart := now.Add(-l.config.Window)

	i := 0
	for i < len(events) && !events[i].After(windowStart) {
		i++
	}
	events = events[i:]

	if len(events) == 0 {
		delete(l.windows, key)
		return nil
	}
	l.windows[key] = events
	return events
}

func (l *MemoryLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key := range l.windows {
				l.prune(key, now)
			}
			l.mu.Unlock()
		}
	}
}
