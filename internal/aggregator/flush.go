package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
)

// Flush sends the pending queue to the remote store. It returns
// ErrFlushInProgress without touching the network when another flush is
// running, and wraps remote failures in ErrRemoteValidationFailed or
// ErrRemoteWriteFailed. The queue is only shrunk by events that were written
// or found to reference deleted items.
func (a *Aggregator) Flush(ctx context.Context) error {
	if a.isClosed() {
		return ErrClosed
	}
	return a.flush(ctx)
}

func (a *Aggregator) flush(ctx context.Context) error {
	if !a.inFlight.CompareAndSwap(false, true) {
		a.metrics.flushed(resultSkipped)
		return ErrFlushInProgress
	}
	defer a.inFlight.Store(false)

	result, err := a.runFlush(ctx)
	a.metrics.flushed(result)
	return err
}

func (a *Aggregator) runFlush(ctx context.Context) (string, error) {
	a.queueMu.Lock()
	pending, err := a.loadPending(ctx)
	a.queueMu.Unlock()
	if err != nil {
		return resultStorageError, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	// Every exit below counts as an attempt, so a failing remote still waits a
	// full interval before the next automatic flush.
	defer a.markFlushed(ctx)

	if len(pending) == 0 {
		return resultEmpty, nil
	}

	start := a.clock.Now()
	defer func() { a.metrics.flushDuration(a.clock.Now().Sub(start)) }()

	ip := a.resolveIP(ctx)
	userAgent := a.env.UserAgent()

	existing, err := a.existingItems(ctx, pending)
	if err != nil {
		a.log.Warn("Existence check failed, keeping pending views",
			logger.Int("pending", len(pending)),
			logger.Error(err),
		)
		return resultValidationFailed, fmt.Errorf("%w: %w", ErrRemoteValidationFailed, err)
	}

	valid, dropped := partition(pending, existing)
	if len(dropped) > 0 {
		if err = a.removeFromQueue(ctx, dropped); err != nil {
			return resultStorageError, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		a.metrics.dropped(len(dropped))
		a.log.Info("Dropped views of deleted items", logger.Int("dropped", len(dropped)))
	}

	if len(valid) == 0 {
		return resultSuccess, nil
	}

	records := buildRecords(valid, ip, userAgent, start)

	upsertCtx, cancel := context.WithTimeout(ctx, a.cfg.RemoteTimeout)
	err = a.remote.UpsertViews(upsertCtx, records)
	cancel()
	if err != nil {
		a.log.Warn("View upsert failed, keeping pending views",
			logger.Int("pending", len(valid)),
			logger.Error(err),
		)
		return resultWriteFailed, fmt.Errorf("%w: %w", ErrRemoteWriteFailed, err)
	}

	if err = a.removeFromQueue(ctx, valid); err != nil {
		return resultStorageError, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	a.metrics.upserted(len(records))

	a.log.Info("Flushed views",
		logger.Int("upserted", len(records)),
		logger.Int("dropped", len(dropped)),
		logger.Duration("duration", a.clock.Now().Sub(start)),
	)
	return resultSuccess, nil
}

func (a *Aggregator) existingItems(ctx context.Context, pending []domain.ViewEvent) (map[string]struct{}, error) {
	ids := uniqueItemIDs(pending)

	checkCtx, cancel := context.WithTimeout(ctx, a.cfg.RemoteTimeout)
	defer cancel()

	found, err := a.remote.ExistingItems(checkCtx, ids)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(found))
	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// removeFromQueue deletes the given events from the persisted queue, keeping
// anything recorded while the flush was on the network.
func (a *Aggregator) removeFromQueue(ctx context.Context, done []domain.ViewEvent) error {
	remove := make(map[domain.ViewEvent]struct{}, len(done))
	for _, e := range done {
		remove[e] = struct{}{}
	}

	a.queueMu.Lock()
	defer a.queueMu.Unlock()

	current, err := a.loadPending(ctx)
	if err != nil {
		return err
	}

	kept := current[:0]
	for _, e := range current {
		if _, ok := remove[e]; !ok {
			kept = append(kept, e)
		}
	}
	return a.savePending(ctx, kept)
}

// markFlushed stamps the attempt even when the caller has gone away.
func (a *Aggregator) markFlushed(ctx context.Context) {
	stamp := a.clock.Now().Format(time.RFC3339Nano)
	if err := a.store.Set(context.WithoutCancel(ctx), a.key(keyLastFlushAt), []byte(stamp), 0); err != nil {
		a.log.Warn("Failed to persist last flush time", logger.Error(err))
	}
}

// partition splits events by whether their item still exists.
func partition(events []domain.ViewEvent, existing map[string]struct{}) (valid, dropped []domain.ViewEvent) {
	for _, e := range events {
		if _, ok := existing[e.ItemID]; ok {
			valid = append(valid, e)
		} else {
			dropped = append(dropped, e)
		}
	}
	return valid, dropped
}

func uniqueItemIDs(events []domain.ViewEvent) []string {
	seen := make(map[string]struct{}, len(events))
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.ItemID]; ok {
			continue
		}
		seen[e.ItemID] = struct{}{}
		ids = append(ids, e.ItemID)
	}
	return ids
}

func buildRecords(events []domain.ViewEvent, ip, userAgent string, viewedAt time.Time) []domain.ViewRecord {
	records := make([]domain.ViewRecord, len(events))
	for i, e := range events {
		records[i] = domain.ViewRecord{
			ItemID:    e.ItemID,
			IPAddress: ip,
			UserAgent: userAgent,
			ViewedAt:  viewedAt,
			Date:      e.Date,
		}
	}
	return records
}
