package aggregator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/localstore"
)

// fakeRemote is an in-memory backend that enforces the views uniqueness key.
type fakeRemote struct {
	mu        sync.Mutex
	items     map[string]bool
	rows      map[string]domain.ViewRecord
	checks    [][]string
	upserts   [][]domain.ViewRecord
	checkErr  error
	upsertErr error

	// block, when set, holds ExistingItems until closed; entered is signalled first.
	block   chan struct{}
	entered chan struct{}
}

func newFakeRemote(items ...string) *fakeRemote {
	r := &fakeRemote{
		items: make(map[string]bool),
		rows:  make(map[string]domain.ViewRecord),
	}
	for _, id := range items {
		r.items[id] = true
	}
	return r
}

func (r *fakeRemote) ExistingItems(ctx context.Context, ids []string) ([]string, error) {
	r.mu.Lock()
	r.checks = append(r.checks, append([]string(nil), ids...))
	block, entered := r.block, r.entered
	r.entered = nil
	r.mu.Unlock()

	if block != nil {
		if entered != nil {
			close(entered)
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.checkErr != nil {
		return nil, r.checkErr
	}
	var out []string
	for _, id := range ids {
		if r.items[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *fakeRemote) UpsertViews(_ context.Context, records []domain.ViewRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.upserts = append(r.upserts, append([]domain.ViewRecord(nil), records...))
	if r.upsertErr != nil {
		return r.upsertErr
	}
	for _, rec := range records {
		key := rec.ItemID + "|" + rec.IPAddress + "|" + rec.UserAgent + "|" + rec.Date
		if _, dup := r.rows[key]; !dup {
			r.rows[key] = rec
		}
	}
	return nil
}

func (r *fakeRemote) checkCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.checks)
}

func (r *fakeRemote) upsertCalls() [][]domain.ViewRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.ViewRecord(nil), r.upserts...)
}

func (r *fakeRemote) rowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *fakeRemote) setUpsertErr(err error) {
	r.mu.Lock()
	r.upsertErr = err
	r.mu.Unlock()
}

type fakeIP struct {
	calls atomic.Int32
	ip    string
	err   error
}

func (f *fakeIP) Lookup(context.Context) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.ip, nil
}

// flakyStore wraps a store and fails writes on demand. Like the real backends
// it refuses writes under a cancelled context.
type flakyStore struct {
	localstore.Store
	failSet atomic.Bool
	failAll atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.failAll.Load() {
		return nil, errDiskFull
	}
	return s.Store.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failSet.Load() || s.failAll.Load() {
		return errDiskFull
	}
	return s.Store.Set(ctx, key, value, ttl)
}
