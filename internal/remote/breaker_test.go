package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/circuitbreaker"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/remote"
)

type countingService struct {
	calls int
	err   error
}

func (s *countingService) ExistingItems(_ context.Context, ids []string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return ids, nil
}

func (s *countingService) UpsertViews(context.Context, []domain.ViewRecord) error {
	s.calls++
	return s.err
}

func TestBreakerService_FailsFastWhenOpen(t *testing.T) {
	backend := &countingService{err: errors.New("502 bad gateway")}
	svc := remote.WithBreaker(backend, circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		OpenTimeout:      time.Hour,
	}))
	ctx := context.Background()

	_, err := svc.ExistingItems(ctx, []string{"stmt-1"})
	require.Error(t, err)
	require.Error(t, svc.UpsertViews(ctx, nil))
	assert.Equal(t, circuitbreaker.StateOpen, svc.State())

	_, err = svc.ExistingItems(ctx, []string{"stmt-1"})
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, backend.calls)
}

func TestBreakerService_PassesResultsThrough(t *testing.T) {
	backend := &countingService{}
	svc := remote.WithBreaker(backend, circuitbreaker.New(circuitbreaker.Config{}))

	found, err := svc.ExistingItems(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, found)
	assert.Equal(t, circuitbreaker.StateClosed, svc.State())
}
