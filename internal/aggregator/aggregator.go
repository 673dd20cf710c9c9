// Package aggregator records content-item views at most once per item per calendar
// day, queues them in a local store, and flushes them to the remote backend in
// debounced batches.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/clock"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/environment"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/localstore"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/remote"
)

// Defaults for Config.
const (
	DefaultBatchInterval = time.Hour
	DefaultMarkerTTL     = 24 * time.Hour
	DefaultRemoteTimeout = 10 * time.Second
	DefaultKeyPrefix     = "mondai:views:"

	probeTimeout = 2 * time.Second
)

// Local store keys, relative to Config.KeyPrefix.
const (
	keyPending     = "pending"
	keyLastFlushAt = "last_flush_at"
	keyIP          = "ip"
	keyMarker      = "marker:"
	keyProbe       = "probe"
)

// Config tunes the aggregator.
type Config struct {
	// BatchInterval is the minimum spacing between flushes and the debounce delay.
	BatchInterval time.Duration
	// MarkerTTL is the lifetime of a per-item daily marker.
	MarkerTTL time.Duration
	// RemoteTimeout bounds each remote call inside a flush.
	RemoteTimeout time.Duration
	// KeyPrefix namespaces every local store key.
	KeyPrefix string
	// FlushOnClose makes Close attempt one last flush.
	FlushOnClose bool
}

func (c *Config) setDefaults() {
	if c.BatchInterval <= 0 {
		c.BatchInterval = DefaultBatchInterval
	}
	if c.MarkerTTL <= 0 {
		c.MarkerTTL = DefaultMarkerTTL
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = DefaultRemoteTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
}

// IPResolver looks up the public IP address of the viewer.
type IPResolver interface {
	Lookup(ctx context.Context) (string, error)
}

// Deps are the collaborators of an Aggregator. Remote is required; the rest
// have usable defaults.
type Deps struct {
	Store   localstore.Store
	Remote  remote.Service
	IP      IPResolver
	Env     environment.Info
	Clock   clock.Clock
	Logger  logger.Logger
	Metrics *Metrics
}

// Aggregator is the view-event aggregator for one viewing profile.
type Aggregator struct {
	cfg     Config
	store   localstore.Store
	remote  remote.Service
	ip      IPResolver
	env     environment.Info
	clock   clock.Clock
	log     logger.Logger
	metrics *Metrics

	degraded bool

	// queueMu serialises read-modify-write cycles on the pending queue.
	queueMu sync.Mutex

	inFlight atomic.Bool

	mu       sync.Mutex // guards the fields below
	timer    clock.Timer
	timerGen uint64
	closed   bool
	wg       sync.WaitGroup
}

// New builds an aggregator. The store is probed once; if it is not usable the
// aggregator falls back to an in-memory store for its lifetime.
func New(cfg Config, deps Deps) (*Aggregator, error) {
	if deps.Remote == nil {
		return nil, errors.New("aggregator: remote service is required")
	}
	cfg.setDefaults()

	if deps.Clock == nil {
		deps.Clock = clock.New(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Env == nil {
		deps.Env = environment.Static{}
	}

	a := &Aggregator{
		cfg:     cfg,
		store:   deps.Store,
		remote:  deps.Remote,
		ip:      deps.IP,
		env:     deps.Env,
		clock:   deps.Clock,
		log:     deps.Logger,
		metrics: deps.Metrics,
	}

	if err := a.probeStore(); err != nil {
		a.log.Warn("Local storage unavailable, keeping views in memory",
			logger.Error(fmt.Errorf("%w: %w", ErrStorageUnavailable, err)))
		a.store = localstore.NewMemoryStore(a.clock.Now)
		a.degraded = true
	}

	return a, nil
}

func (a *Aggregator) probeStore() error {
	if a.store == nil {
		return errors.New("no store configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	key := a.key(keyProbe)
	if err := a.store.Set(ctx, key, []byte("1"), time.Minute); err != nil {
		return err
	}
	if _, err := a.store.Get(ctx, key); err != nil {
		return err
	}
	return a.store.Remove(ctx, key)
}

// Degraded reports whether the aggregator is running on the in-memory fallback.
func (a *Aggregator) Degraded() bool {
	return a.degraded
}

// RecordView records a view of itemID. It never fails: storage problems lose
// the view for this call and are only logged.
func (a *Aggregator) RecordView(ctx context.Context, itemID string) {
	if itemID == "" {
		a.log.Debug("Ignoring view with empty item id")
		return
	}
	if a.isClosed() {
		a.log.Warn("View recorded after close, ignoring", logger.ItemID(itemID))
		return
	}

	now := a.clock.Now()
	today := domain.FormatDate(now)

	a.queueMu.Lock()
	appended, err := a.record(ctx, itemID, today)
	a.queueMu.Unlock()

	if err != nil {
		a.metrics.recordError()
		a.log.Warn("View not recorded",
			logger.ItemID(itemID),
			logger.Error(fmt.Errorf("%w: %w", ErrStorageUnavailable, err)),
		)
		return
	}
	if !appended {
		a.metrics.deduplicated()
		return
	}

	a.metrics.recorded()
	a.scheduleFlush(ctx, now)
}

// record applies the daily dedup rules and reports whether an event was queued.
func (a *Aggregator) record(ctx context.Context, itemID, today string) (bool, error) {
	markerKey := a.key(keyMarker + itemID)

	marker, err := a.store.Get(ctx, markerKey)
	switch {
	case err == nil && string(marker) == today:
		return false, nil
	case err != nil && !errors.Is(err, localstore.ErrNotFound):
		return false, fmt.Errorf("read marker: %w", err)
	}

	pending, err := a.loadPending(ctx)
	if err != nil {
		return false, err
	}

	event := domain.ViewEvent{ItemID: itemID, Date: today}
	appended := !containsEvent(pending, event)
	if appended {
		pending = append(pending, event)
		if err = a.savePending(ctx, pending); err != nil {
			return false, err
		}
	}

	if err = a.store.Set(ctx, markerKey, []byte(today), a.cfg.MarkerTTL); err != nil {
		a.log.Warn("Failed to write daily marker",
			logger.ItemID(itemID),
			logger.Error(err),
		)
	}

	return appended, nil
}

// scheduleFlush flushes now when the batch interval has elapsed, otherwise it
// re-arms the single debounce timer.
func (a *Aggregator) scheduleFlush(ctx context.Context, now time.Time) {
	last, err := a.LastFlushAt(ctx)
	if err != nil {
		a.log.Warn("Failed to read last flush time", logger.Error(err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	if now.Sub(last) >= a.cfg.BatchInterval && !a.inFlight.Load() {
		a.stopTimerLocked()
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.backgroundFlush("interval")
		}()
		return
	}

	a.stopTimerLocked()
	a.timerGen++
	gen := a.timerGen
	a.timer = a.clock.AfterFunc(a.cfg.BatchInterval, func() { a.onTimer(gen) })
}

func (a *Aggregator) onTimer(gen uint64) {
	a.mu.Lock()
	if a.closed || gen != a.timerGen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.wg.Add(1)
	a.mu.Unlock()

	defer a.wg.Done()
	a.backgroundFlush("timer")
}

func (a *Aggregator) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	// Invalidate callbacks that already fired but have not taken the lock yet.
	a.timerGen++
}

func (a *Aggregator) backgroundFlush(trigger string) {
	err := a.flush(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, ErrFlushInProgress):
		a.log.Debug("Flush skipped, another flush is running", logger.String("trigger", trigger))
	default:
		a.log.Error("Background flush failed",
			logger.String("trigger", trigger),
			logger.Error(err),
		)
	}
}

// Pending returns a copy of the pending queue.
func (a *Aggregator) Pending(ctx context.Context) ([]domain.ViewEvent, error) {
	a.queueMu.Lock()
	defer a.queueMu.Unlock()
	return a.loadPending(ctx)
}

// LastFlushAt returns the time of the last flush attempt, or the zero time if
// there has been none.
func (a *Aggregator) LastFlushAt(ctx context.Context) (time.Time, error) {
	raw, err := a.store.Get(ctx, a.key(keyLastFlushAt))
	if errors.Is(err, localstore.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read last flush: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		// A corrupt timestamp behaves like "never flushed".
		return time.Time{}, nil
	}
	return t, nil
}

// Close stops the debounce timer and waits for background flushes. With
// FlushOnClose set it then runs one final flush. Close is idempotent.
func (a *Aggregator) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.stopTimerLocked()
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("wait for background flush: %w", ctx.Err())
	}

	if !a.cfg.FlushOnClose {
		return nil
	}
	if err := a.flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

func (a *Aggregator) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Aggregator) key(name string) string {
	return a.cfg.KeyPrefix + name
}

// loadPending reads the queue. Callers hold queueMu.
func (a *Aggregator) loadPending(ctx context.Context) ([]domain.ViewEvent, error) {
	raw, err := a.store.Get(ctx, a.key(keyPending))
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending queue: %w", err)
	}

	var events []domain.ViewEvent
	if err = json.Unmarshal(raw, &events); err != nil {
		a.log.Warn("Discarding corrupt pending queue", logger.Error(err))
		return nil, nil
	}
	return events, nil
}

// savePending writes the queue. Callers hold queueMu.
func (a *Aggregator) savePending(ctx context.Context, events []domain.ViewEvent) error {
	if events == nil {
		events = []domain.ViewEvent{}
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode pending queue: %w", err)
	}
	if err = a.store.Set(ctx, a.key(keyPending), raw, 0); err != nil {
		return fmt.Errorf("write pending queue: %w", err)
	}
	a.metrics.pending(len(events))
	return nil
}

func containsEvent(events []domain.ViewEvent, e domain.ViewEvent) bool {
	for _, existing := range events {
		if existing == e {
			return true
		}
	}
	return false
}
