package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infragin "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/gin"
	infralogger "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/aggregator"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/api"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/config"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/environment"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/handler"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/localstore"
)

type acceptAllRemote struct {
	mu      sync.Mutex
	written []domain.ViewRecord
}

func (r *acceptAllRemote) ExistingItems(_ context.Context, ids []string) ([]string, error) {
	return ids, nil
}

func (r *acceptAllRemote) UpsertViews(_ context.Context, records []domain.ViewRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written = append(r.written, records...)
	return nil
}

func (r *acceptAllRemote) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.written)
}

func newTestServer(t *testing.T) (http.Handler, *acceptAllRemote) {
	t.Helper()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	observed := environment.NewObserved(cfg.Service.UserAgent)
	remote := &acceptAllRemote{}

	agg, err := aggregator.New(cfg.AggregatorSettings(), aggregator.Deps{
		Store:   localstore.NewMemoryStore(nil),
		Remote:  remote,
		Env:     observed,
		Logger:  infralogger.NewNop(),
		Metrics: aggregator.NewMetrics(reg),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = agg.Close(context.Background()) })

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	checks := map[string]infragin.HealthChecker{
		"local_store": infragin.PingHealthChecker(func() error { return nil }, true),
	}
	h := handler.NewViewHandler(agg, observed, infralogger.NewNop())
	srv := api.NewServer(h, cfg, infralogger.NewNop(), reg, checks, done)
	return srv.Router(), remote
}

func TestServer_RecordViewAndFlush(t *testing.T) {
	router, remote := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/views/stmt-1", http.NoBody)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	// A fresh profile has never flushed, so the first view is sent right away.
	require.Eventually(t, func() bool { return remote.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64)", remote.written[0].UserAgent)
	assert.Equal(t, aggregator.UnknownIP, remote.written[0].IPAddress)

	// The background flush may still hold the in-flight guard for a moment.
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/views/flush", http.NoBody))
		return w.Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	router, _ := newTestServer(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"view-agent"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "view_agent_pending_events"))
}
