// Package profiling starts optional pprof and Pyroscope profilers for the view agent.
package profiling

import (
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // bound to localhost only
	"os"
	"runtime"
	"time"

	"github.com/grafana/pyroscope-go"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
)

const (
	defaultPprofPort     = "6060"
	pprofReadHeaderLimit = 5 * time.Second
)

// Config controls which profilers are started.
type Config struct {
	PprofEnabled     bool   `env:"ENABLE_PROFILING"            yaml:"pprof_enabled"`
	PprofPort        string `env:"PPROF_PORT"                  yaml:"pprof_port"`
	PyroscopeEnabled bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"pyroscope_enabled"`
	PyroscopeURL     string `env:"PYROSCOPE_SERVER_URL"        yaml:"pyroscope_url"`
	Environment      string `env:"PYROSCOPE_ENVIRONMENT"       yaml:"environment"`
}

// Profiler holds running profilers so they can be stopped on shutdown.
type Profiler struct {
	pyroscope *pyroscope.Profiler
}

// Start launches the profilers enabled in cfg. The pprof server binds to
// localhost only. A nil Profiler is returned when nothing is enabled.
func Start(cfg Config, serviceName, version string, log logger.Logger) (*Profiler, error) {
	if cfg.PprofEnabled {
		startPprof(cfg.PprofPort, log)
	}

	if !cfg.PyroscopeEnabled {
		return nil, nil
	}

	if cfg.PyroscopeURL == "" {
		return nil, errors.New("pyroscope url is required when continuous profiling is enabled")
	}

	env := cfg.Environment
	if env == "" {
		env = "development"
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "mondai." + serviceName,
		ServerAddress:   cfg.PyroscopeURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": env,
			"version":     version,
			"hostname":    hostname(),
			"go_version":  runtime.Version(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start pyroscope profiler: %w", err)
	}

	log.Info("Pyroscope continuous profiling started",
		logger.String("server", cfg.PyroscopeURL),
		logger.String("environment", env),
	)

	return &Profiler{pyroscope: p}, nil
}

// Stop stops the continuous profiler if one is running.
func (p *Profiler) Stop() error {
	if p == nil || p.pyroscope == nil {
		return nil
	}
	return p.pyroscope.Stop()
}

func startPprof(port string, log logger.Logger) {
	if port == "" {
		port = defaultPprofPort
	}
	addr := "localhost:" + port

	srv := &http.Server{
		Addr:              addr,
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: pprofReadHeaderLimit,
	}

	go func() {
		log.Info("Starting pprof server", logger.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof server error", logger.Error(err))
		}
	}()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
