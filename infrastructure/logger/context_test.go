package logger_test

import (
	"context"
	"testing"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
)

func TestWithContext_FromContext_RoundTrip(t *testing.T) {
	t.Parallel()

	nop := logger.NewNop()
	ctx := logger.WithContext(context.Background(), nop)

	if got := logger.FromContext(ctx); got != nop {
		t.Errorf("FromContext returned %v, want the stored logger %v", got, nop)
	}
}

func TestFromContext_FallbackIsSharedAndUsable(t *testing.T) {
	t.Parallel()

	a := logger.FromContext(context.Background())
	b := logger.FromContext(context.Background())

	if a == nil || b == nil {
		t.Fatal("FromContext on empty context returned nil, want fallback logger")
	}
	if a != b {
		t.Error("FromContext returned different fallback instances, want one shared logger")
	}

	// The fallback is warn-level; lower levels are filtered but must not panic.
	a.Debug("debug message")
	a.Warn("message with field", logger.String("key", "value"))
}

func TestNew_ConsoleFormat(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{
		Level:       "debug",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	enriched := l.With(logger.String("service", "view-agent"))
	if enriched == l {
		t.Error("With() returned the same instance, want a derived logger")
	}
	enriched.Info("console logger works")
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{Level: "verbose", OutputPaths: []string{"stderr"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.With(logger.Component("aggregator"), logger.ItemID("stmt-1")).Info("fallback level works")
}

func TestNew_BadOutputPath(t *testing.T) {
	t.Parallel()

	_, err := logger.New(logger.Config{OutputPaths: []string{"/nonexistent-dir/agent.log"}})
	if err == nil {
		t.Fatal("New() error = nil, want error for unwritable output path")
	}
}
