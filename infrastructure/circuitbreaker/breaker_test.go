package circuitbreaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/circuitbreaker"
)

var errBackend = errors.New("backend down")

type manualTime struct{ now time.Time }

func (m *manualTime) Now() time.Time { return m.now }

func failing(context.Context) error { return errBackend }
func ok(context.Context) error      { return nil }

func newBreaker(clk *manualTime, transitions *[]string) *circuitbreaker.Breaker {
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		Now:              clk.Now,
		OnStateChange: func(from, to circuitbreaker.State) {
			*transitions = append(*transitions, from.String()+"->"+to.String())
		},
	})
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clk := &manualTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	b := newBreaker(clk, &transitions)
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, failing), errBackend)
	assert.Equal(t, circuitbreaker.StateClosed, b.State())

	require.ErrorIs(t, b.Execute(ctx, failing), errBackend)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clk := &manualTime{now: time.Now()}
	var transitions []string
	b := newBreaker(clk, &transitions)
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failing))
	require.NoError(t, b.Execute(ctx, ok))
	require.Error(t, b.Execute(ctx, failing))

	assert.Equal(t, circuitbreaker.StateClosed, b.State())
	assert.Empty(t, transitions)
}

func TestBreaker_ProbeClosesOrReopens(t *testing.T) {
	clk := &manualTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	b := newBreaker(clk, &transitions)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)

	clk.now = clk.now.Add(time.Minute)
	require.ErrorIs(t, b.Execute(ctx, failing), errBackend)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	clk.now = clk.now.Add(time.Minute)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, circuitbreaker.StateClosed, b.State())

	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->open",
		"open->half-open",
		"half-open->closed",
	}, transitions)
}

func TestBreaker_SingleProbeAtATime(t *testing.T) {
	clk := &manualTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	b := newBreaker(clk, &transitions)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)
	clk.now = clk.now.Add(2 * time.Minute)

	err := b.Execute(ctx, func(ctx context.Context) error {
		return b.Execute(ctx, ok)
	})
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	clk := &manualTime{now: time.Now()}
	var transitions []string
	b := newBreaker(clk, &transitions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 3 {
		require.ErrorIs(t, b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() }), context.Canceled)
	}
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	clk := &manualTime{now: time.Now()}
	var transitions []string
	b := newBreaker(clk, &transitions)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)
	b.Reset()

	assert.Equal(t, circuitbreaker.StateClosed, b.State())
	require.NoError(t, b.Execute(ctx, ok))
}

func hang(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func executeWithTimeout(b *circuitbreaker.Breaker, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	return b.Execute(ctx, fn)
}

func TestBreaker_TimeoutsOpenTheBreaker(t *testing.T) {
	clk := &manualTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	b := newBreaker(clk, &transitions)

	require.ErrorIs(t, executeWithTimeout(b, hang), context.DeadlineExceeded)
	require.ErrorIs(t, executeWithTimeout(b, hang), context.DeadlineExceeded)

	assert.Equal(t, circuitbreaker.StateOpen, b.State())
	require.ErrorIs(t, executeWithTimeout(b, hang), circuitbreaker.ErrOpen)
}

func TestBreaker_TimedOutProbeReopens(t *testing.T) {
	clk := &manualTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	b := newBreaker(clk, &transitions)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)
	clk.now = clk.now.Add(time.Minute)

	require.ErrorIs(t, executeWithTimeout(b, hang), context.DeadlineExceeded)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->open"}, transitions)
}

func TestBreaker_CancelledProbeStaysHalfOpen(t *testing.T) {
	clk := &manualTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	b := newBreaker(clk, &transitions)

	_ = b.Execute(context.Background(), failing)
	_ = b.Execute(context.Background(), failing)
	clk.now = clk.now.Add(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Execute(ctx, hang), context.Canceled)
	assert.Equal(t, circuitbreaker.StateHalfOpen, b.State())

	// The next call is allowed through as a fresh probe.
	require.NoError(t, b.Execute(context.Background(), ok))
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}
