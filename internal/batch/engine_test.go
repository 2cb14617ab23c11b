package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/policy/ratelimit"
)

func keys(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://example.edu/p%d", i)
	}
	return out
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	const limit = 3
	var inFlight, peak atomic.Int32
	items := keys(20)

	report, err := Run(context.Background(), New("test", limit, zap.NewNop()), items, identity,
		func(_ context.Context, item string) (string, error) {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return item, nil
		})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, len(items))
	require.LessOrEqual(t, peak.Load(), int32(limit))
	require.Equal(t, items, report.Values())
	require.False(t, report.Partial)
}

func TestRun_IsolatesFailures(t *testing.T) {
	t.Parallel()

	items := keys(4)
	report, err := Run(context.Background(), New("test", 2, nil), items, identity,
		func(_ context.Context, item string) (int, error) {
			switch item {
			case items[1]:
				return 0, &extract.FetchError{URL: item, StatusCode: 404}
			case items[2]:
				return 0, &extract.SchemaValidationError{Schema: "professor", Field: "name", Reason: "missing"}
			}
			return 1, nil
		})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 4)
	require.Equal(t, KindSuccess, report.Outcomes[0].Kind)
	require.Equal(t, KindFetchFailed, report.Outcomes[1].Kind)
	require.Equal(t, KindExtractFailed, report.Outcomes[2].Kind)
	require.Equal(t, KindSuccess, report.Outcomes[3].Kind)
	require.Equal(t, items[1], report.Outcomes[1].Key)

	s := report.Summary()
	require.Equal(t, Summary{Total: 4, Succeeded: 2, FetchFailed: 1, ExtractFailed: 1}, s)
	require.Len(t, report.Failures(), 2)
}

func TestRun_DeadlineYieldsPartialReport(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	items := keys(6)
	report, err := Run(ctx, New("test", 2, nil), items, identity,
		func(ctx context.Context, item string) (string, error) {
			if item == items[0] || item == items[1] {
				return item, nil
			}
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			return "", ctx.Err()
		})
	require.ErrorIs(t, err, extract.ErrBatchTimeout)
	require.True(t, report.Partial)
	require.Len(t, report.Outcomes, len(items))
	require.Equal(t, []string{items[0], items[1]}, report.Values())
	for _, o := range report.Outcomes[2:] {
		require.Equal(t, KindTimedOut, o.Kind, o.Key)
	}
}

func TestRun_RateLimitedTasksCountAsTimeouts(t *testing.T) {
	t.Parallel()

	// One token per second: the first task gets it, the rest cannot be served
	// before the deadline and give up immediately.
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	items := keys(6)
	start := time.Now()
	report, err := Run(ctx, New("test", 5, nil), items, identity,
		func(ctx context.Context, item string) (string, error) {
			if err := limiter.Wait(ctx, item); err != nil {
				return "", err
			}
			return item, nil
		})
	require.ErrorIs(t, err, extract.ErrBatchTimeout)
	require.True(t, report.Partial)
	require.Less(t, time.Since(start), 400*time.Millisecond)

	sum := report.Summary()
	require.Equal(t, 1, sum.Succeeded)
	require.Equal(t, len(items)-1, sum.TimedOut)
	require.Zero(t, sum.ExtractFailed)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	requestTimeout := &extract.FetchError{URL: "https://cs.example.edu/a", Err: context.DeadlineExceeded}
	tests := []struct {
		name      string
		err       error
		batchDone bool
		want      Kind
	}{
		{"success", nil, false, KindSuccess},
		{"capability aborts", fmt.Errorf("x: %w", extract.ErrCapabilityUnavailable), false, ""},
		{"request timeout while running", requestTimeout, false, KindFetchFailed},
		{"request timeout after deadline", requestTimeout, true, KindTimedOut},
		{"no time left", fmt.Errorf("rate limit wait: %w", context.DeadlineExceeded), false, KindTimedOut},
		{"validation", &extract.SchemaValidationError{Schema: "course", Reason: "bad"}, false, KindExtractFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, classify(tc.err, tc.batchDone))
		})
	}
}

func TestRun_CapabilityFailureAborts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	items := keys(10)
	_, err := Run(context.Background(), New("test", 1, nil), items, identity,
		func(context.Context, string) (string, error) {
			calls.Add(1)
			return "", fmt.Errorf("model: %w", extract.ErrCapabilityUnavailable)
		})
	require.ErrorIs(t, err, extract.ErrCapabilityUnavailable)
	require.Less(t, calls.Load(), int32(len(items)))
}

func TestRun_Empty(t *testing.T) {
	t.Parallel()

	report, err := Run(context.Background(), New("test", 0, nil), nil, identity,
		func(context.Context, string) (string, error) { return "", errors.New("unreachable") })
	require.NoError(t, err)
	require.Empty(t, report.Outcomes)
	require.Equal(t, DefaultMaxConcurrency, New("x", 0, nil).Limit())
}
