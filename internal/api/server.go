package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	infragin "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/gin"
	infralogger "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/config"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/handler"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// NewServer creates a new HTTP server. done stops background middleware work.
func NewServer(
	viewHandler *handler.ViewHandler,
	cfg *config.Config,
	log infralogger.Logger,
	gatherer prometheus.Gatherer,
	checks map[string]infragin.HealthChecker,
	done <-chan struct{},
) *infragin.Server {
	builder := infragin.NewServerBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithHost(cfg.Service.Host).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithCORSOrigins(cfg.Service.CORSOrigins).
		WithTimeouts(defaultReadTimeout, defaultWriteTimeout, defaultIdleTimeout).
		WithRoutes(func(router *gin.Engine) {
			SetupRoutes(router, viewHandler, gatherer,
				cfg.RateLimit.MaxViewsPerMinute, cfg.RateLimit.Window(), done)
		})

	for name, check := range checks {
		builder = builder.WithHealthCheck(name, check)
	}

	return builder.Build()
}
