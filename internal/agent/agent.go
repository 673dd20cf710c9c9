// Package agent wires a view aggregator and its collaborators from configuration.
// It is shared by the HTTP service and the viewctl command.
package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/circuitbreaker"
	infragin "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/gin"
	infrahttp "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/http"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	infraredis "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/redis"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/retry"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/aggregator"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/clock"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/config"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/environment"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/iplookup"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/localstore"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/remote"
)

// Database connection timeout.
const dbPingTimeout = 5 * time.Second

// healthTimeout bounds a single health-check ping.
const healthTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// Agent owns one aggregator and everything it was built from.
type Agent struct {
	Aggregator *aggregator.Aggregator
	UserAgent  *environment.Observed
	Registry   *prometheus.Registry
	Checks     map[string]infragin.HealthChecker

	log     logger.Logger
	closers []func() error
}

// Build opens the local store and the remote service and creates the aggregator.
// A local store that cannot be opened is not fatal: the aggregator keeps views
// in memory instead.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Agent, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	clk := clock.New(loc)

	a := &Agent{
		UserAgent: environment.NewObserved(cfg.Service.UserAgent),
		Registry:  prometheus.NewRegistry(),
		Checks:    make(map[string]infragin.HealthChecker),
		log:       log,
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := a.openStore(ctx, cfg, clk)

	svc, err := a.openRemote(ctx, cfg)
	if err != nil {
		_ = a.closeResources()
		return nil, err
	}
	svc = a.guardRemote(svc, cfg)

	agg, err := aggregator.New(cfg.AggregatorSettings(), aggregator.Deps{
		Store:   store,
		Remote:  svc,
		IP:      iplookup.New(cfg.IPLookup.Endpoint, cfg.IPLookup.Timeout),
		Env:     a.UserAgent,
		Clock:   clk,
		Logger:  log.With(logger.Component("aggregator")),
		Metrics: aggregator.NewMetrics(a.Registry),
	})
	if err != nil {
		_ = a.closeResources()
		return nil, fmt.Errorf("create aggregator: %w", err)
	}
	a.Aggregator = agg

	log.Info("View aggregator ready",
		logger.String("local_store", cfg.LocalStore.Driver),
		logger.String("remote", cfg.Remote.Driver),
		logger.Bool("degraded", agg.Degraded()),
		logger.Duration("batch_interval", cfg.Aggregator.BatchInterval),
		logger.String("timezone", loc.String()),
	)
	return a, nil
}

// Close closes the aggregator (running its final flush when configured) and
// then releases the store and remote connections.
func (a *Agent) Close(ctx context.Context) error {
	var errs []error
	if a.Aggregator != nil {
		if err := a.Aggregator.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Agent) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Agent) openStore(ctx context.Context, cfg *config.Config, clk clock.Clock) localstore.Store {
	var (
		store localstore.Store
		err   error
	)

	switch cfg.LocalStore.Driver {
	case config.StoreMemory:
		return localstore.NewMemoryStore(clk.Now)
	case config.StoreRedis:
		store, err = openRedisStore(cfg)
	default:
		store, err = a.openSQLiteStore(ctx, cfg.LocalStore.Path, clk)
	}

	if err != nil {
		a.log.Warn("Local store unavailable",
			logger.String("driver", cfg.LocalStore.Driver),
			logger.Error(err),
		)
		return nil
	}

	a.closers = append(a.closers, func() error { return localstore.Close(store) })
	if p, ok := store.(pinger); ok {
		a.Checks["local_store"] = infragin.PingHealthChecker(pingWithTimeout(p.Ping), true)
	}
	return store
}

func (a *Agent) openSQLiteStore(ctx context.Context, path string, clk clock.Clock) (*localstore.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	store, err := localstore.OpenSQLite(ctx, path, clk.Now)
	if err != nil {
		return nil, err
	}

	if purged, purgeErr := store.PurgeExpired(ctx); purgeErr != nil {
		a.log.Warn("Failed to purge expired entries", logger.Error(purgeErr))
	} else if purged > 0 {
		a.log.Debug("Purged expired entries", logger.Int64("count", purged))
	}
	return store, nil
}

func openRedisStore(cfg *config.Config) (*localstore.RedisStore, error) {
	client, err := infraredis.NewClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	return localstore.NewRedisStore(client, cfg.LocalStore.RedisPrefix), nil
}

func (a *Agent) openRemote(ctx context.Context, cfg *config.Config) (remote.Service, error) {
	switch cfg.Remote.Driver {
	case config.RemotePostgres:
		db, err := connectDatabase(ctx, cfg, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.Checks["database"] = infragin.PingHealthChecker(pingWithTimeout(db.PingContext), false)
		return remote.NewPostgresService(db, cfg.Remote.Tables), nil

	default:
		svc, err := remote.NewRESTService(remote.RESTConfig{
			BaseURL: cfg.Remote.URL,
			APIKey:  cfg.Remote.APIKey,
			Tables:  cfg.Remote.Tables,
			Retry:   retry.Config{MaxAttempts: cfg.Remote.RetryAttempts},
		}, infrahttp.NewClientWithTimeout(cfg.Aggregator.RemoteTimeout), a.log.With(logger.Component("remote")))
		if err != nil {
			return nil, fmt.Errorf("create remote service: %w", err)
		}
		return svc, nil
	}
}

// guardRemote puts a circuit breaker in front of the backend and reports its
// position as a non-critical health check.
func (a *Agent) guardRemote(svc remote.Service, cfg *config.Config) remote.Service {
	breakerCfg := cfg.Remote.Breaker
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		a.log.Warn("Remote circuit breaker changed state",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	guarded := remote.WithBreaker(svc, circuitbreaker.New(breakerCfg))
	a.Checks["remote"] = infragin.PingHealthChecker(func() error {
		if state := guarded.State(); state == circuitbreaker.StateOpen {
			return fmt.Errorf("remote backend unavailable: breaker %s", state)
		}
		return nil
	}, false)
	return guarded
}

// connectDatabase opens and verifies a database connection.
func connectDatabase(ctx context.Context, cfg *config.Config, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	log.Info("Database connected",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Database),
	)
	return db, nil
}

func pingWithTimeout(ping func(context.Context) error) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		return ping(ctx)
	}
}
