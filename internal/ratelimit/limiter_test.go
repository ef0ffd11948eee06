package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Disabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	require.False(t, l.Enabled())
	for range 100 {
		require.True(t, l.Allow("orders"))
	}
	require.NoError(t, l.Wait(context.Background(), "orders"))
}

func TestLimiter_WaitDelaysAfterBurst(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	require.True(t, l.Enabled())
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "orders"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "orders"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_TopicsHaveIndependentBuckets(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 2})
	require.True(t, l.Allow("orders"))
	require.True(t, l.Allow("orders"))
	require.False(t, l.Allow("orders"))

	require.True(t, l.Allow("payments"))
	require.Equal(t, 2, l.Topics())
}

func TestLimiter_WaitFailsWhenDeadlineTooShort(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	require.True(t, l.Allow("orders"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Wait(ctx, "orders")
	require.ErrorContains(t, err, "rate limit wait")
	require.Less(t, time.Since(start), 40*time.Millisecond)
}
