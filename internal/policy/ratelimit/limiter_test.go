package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_WaitSpacesRequestsPerHost(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1 means one token every 100ms.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://cs.example.edu/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://CS.example.edu/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_DifferentHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.edu/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.edu/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_RespectsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example.edu/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example.edu/next"))
}

func TestLimiter_WaitPastDeadlineIsDeadlineExceeded(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://cs.example.edu/a"))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Wait(ctx, "https://cs.example.edu/b")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 100*time.Millisecond, "should fail without sleeping")

	canceled, stop := context.WithCancel(context.Background())
	stop()
	require.ErrorIs(t, l.Wait(canceled, "https://cs.example.edu/c"), context.Canceled)
}

func TestLimiter_PerHostOverrideAndUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0, PerHostRPS: map[string]float64{"Catalog.example.edu": 0.1}})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "https://fast.example.edu/"))
	}
	require.NoError(t, l.Wait(ctx, "https://catalog.example.edu/"))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(short, "https://catalog.example.edu/2"))
}
