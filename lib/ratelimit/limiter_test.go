package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter without real sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter(max int, window time.Duration) (*Limiter, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	var slept []time.Duration
	l := NewLimiter(max, window)
	l.now = clock.Now
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return clock.Sleep(ctx, d)
	}
	return l, clock, &slept
}

func TestNoWaitWithinLimit(t *testing.T) {
	l, _, slept := newTestLimiter(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	require.Empty(t, *slept)
}

func TestWaitBeyondLimit(t *testing.T) {
	l, _, slept := newTestLimiter(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	require.NoError(t, l.Wait(ctx))

	require.Len(t, *slept, 1)
	require.Greater(t, (*slept)[0], time.Duration(0))
	require.LessOrEqual(t, (*slept)[0], time.Minute)
}

func TestWindowSlides(t *testing.T) {
	l, clock, slept := newTestLimiter(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))

	// beyond the window the old occurrences no longer count
	clock.now = clock.now.Add(time.Minute + time.Second)
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	require.Empty(t, *slept)
}

func TestWaitHonorsContext(t *testing.T) {
	l, _, _ := newTestLimiter(1, time.Minute)
	l.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx))
	cancel()
	require.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestDefaults(t *testing.T) {
	l := NewDefaultLimiter()
	require.Equal(t, DefaultMaxRequests, l.MaxRequests)
	require.Equal(t, DefaultWindowSeconds*time.Second, l.Window)
}
