package remote

import (
	"context"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/circuitbreaker"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
)

// BreakerService fails fast while the backend keeps erroring, so a flush
// during an outage returns without waiting out the HTTP retries.
type BreakerService struct {
	next    Service
	breaker *circuitbreaker.Breaker
}

// WithBreaker wraps next. Both operations share one breaker.
func WithBreaker(next Service, breaker *circuitbreaker.Breaker) *BreakerService {
	return &BreakerService{next: next, breaker: breaker}
}

// ExistingItems implements Service.
func (s *BreakerService) ExistingItems(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		found, err = s.next.ExistingItems(ctx, ids)
		return err
	})
	return found, err
}

// UpsertViews implements Service.
func (s *BreakerService) UpsertViews(ctx context.Context, records []domain.ViewRecord) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.next.UpsertViews(ctx, records)
	})
}

// State reports the breaker position.
func (s *BreakerService) State() circuitbreaker.State {
	return s.breaker.State()
}
