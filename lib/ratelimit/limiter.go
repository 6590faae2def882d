// Package ratelimit provides a blocking sliding-window rate limiter shared
// by every outbound request of a mirror run.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultMaxRequests   = 14
	DefaultWindowSeconds = 60
)

// Limiter releases at most MaxRequests callers within any trailing Window.
// It is safe for concurrent use; state is guarded by a mutex so independent
// runs may share one limiter without exceeding the global ceiling.
type Limiter struct {
	MaxRequests int
	Window      time.Duration

	mu         sync.Mutex
	timestamps []time.Time
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindowSeconds * time.Second
	}
	return &Limiter{
		MaxRequests: maxRequests,
		Window:      window,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func NewDefaultLimiter() *Limiter {
	return NewLimiter(DefaultMaxRequests, DefaultWindowSeconds*time.Second)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until issuing one more request stays within the window, then
// records the current time as a new occurrence. The worst case wait is one
// full window. A cancelled context aborts the wait without recording.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.timestamps) >= l.MaxRequests {
		wait := l.Window - now.Sub(l.timestamps[0])
		if wait > 0 {
			slog.Info("rate limit reached", "wait_seconds", wait.Seconds())
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
			now = l.now()
			l.prune(now)
		}
	}

	l.timestamps = append(l.timestamps, now)
	return nil
}

// prune drops occurrences older than the window. Caller holds the mutex.
func (l *Limiter) prune(now time.Time) {
	i := 0
	for i < len(l.timestamps) && now.Sub(l.timestamps[i]) > l.Window {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}
