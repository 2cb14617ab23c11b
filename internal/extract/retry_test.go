package extract

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialRetryPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3)
	transient := &FetchError{URL: "https://x", Err: errors.New("connection reset")}

	require.True(t, p.ShouldRetry(transient, 1))
	require.False(t, p.ShouldRetry(transient, 3))
	require.False(t, p.ShouldRetry(nil, 1))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(fmt.Errorf("wrap: %w", ErrEmptyContent), 1))
	require.False(t, p.ShouldRetry(&FetchError{URL: "https://x", StatusCode: 404, Err: errors.New("not found")}, 1))
	require.True(t, p.ShouldRetry(&FetchError{URL: "https://x", StatusCode: 503, Err: errors.New("unavailable")}, 1))
	require.False(t, p.ShouldRetry(&SchemaValidationError{Schema: "professor", Reason: "bad"}, 1))
}

func TestExponentialRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5)
	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 5*time.Second)
	}
}
