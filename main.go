package main

import (
	"context"
	"fmt"
	"os"
	"time"

	infraconfig "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/config"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/profiling"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/agent"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/api"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/config"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/handler"
)

// closeTimeout bounds the final flush on shutdown.
const closeTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Initialize logger
	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	profiler, err := profiling.Start(cfg.Profiling, cfg.Service.Name, cfg.Service.Version, log)
	if err != nil {
		log.Warn("Profiling disabled", logger.Error(err))
	} else {
		defer func() { _ = profiler.Stop() }()
	}

	// Build the aggregator and its stores
	a, err := agent.Build(context.Background(), cfg, log)
	if err != nil {
		log.Error("Failed to start view agent", logger.Error(err))
		return 1
	}
	defer closeAgent(a, log)

	return runServer(cfg, log, a)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := infraconfig.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// runServer creates the HTTP server and blocks until shutdown.
func runServer(cfg *config.Config, log logger.Logger, a *agent.Agent) int {
	viewHandler := handler.NewViewHandler(a.Aggregator, a.UserAgent, log)

	// done channel signals background goroutines (rate limiter) on shutdown
	done := make(chan struct{})
	defer close(done)

	server := api.NewServer(viewHandler, cfg, log, a.Registry, a.Checks, done)

	log.Info("View agent starting",
		logger.String("host", cfg.Service.Host),
		logger.Int("port", cfg.Service.Port),
	)

	if err := server.Run(); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("View agent exited cleanly")
	return 0
}

func closeAgent(a *agent.Agent, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := a.Close(ctx); err != nil {
		log.Warn("View agent closed with errors", logger.Error(err))
	}
}
