package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{}
	cfg.Remote.URL = "https://project.supabase.co"
	cfg.Remote.APIKey = "anon"
	setDefaults(cfg)
	return cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assertStringEqual(t, "service.name", defaultServiceName, cfg.Service.Name)
	assertStringEqual(t, "service.host", defaultServiceHost, cfg.Service.Host)
	assertIntEqual(t, "service.port", defaultServicePort, cfg.Service.Port)
	assertStringEqual(t, "local_store.driver", StoreSQLite, cfg.LocalStore.Driver)
	assertStringEqual(t, "remote.driver", RemoteREST, cfg.Remote.Driver)
	assertStringEqual(t, "remote.tables.items", "statements", cfg.Remote.Tables.Items)
	assertStringEqual(t, "remote.tables.views", "statement_views", cfg.Remote.Tables.Views)
	assertStringEqual(t, "database.database", defaultDBName, cfg.Database.Database)
	assertStringEqual(t, "aggregator.key_prefix", "mondai:views:", cfg.Aggregator.KeyPrefix)

	if cfg.Aggregator.BatchInterval != time.Hour {
		t.Errorf("aggregator.batch_interval: got %v, want 1h", cfg.Aggregator.BatchInterval)
	}
	if cfg.Aggregator.RemoteTimeout != 10*time.Second {
		t.Errorf("aggregator.remote_timeout: got %v, want 10s", cfg.Aggregator.RemoteTimeout)
	}
	if cfg.Remote.Breaker.FailureThreshold != 5 || cfg.Remote.Breaker.OpenTimeout != time.Minute {
		t.Errorf("remote.breaker: got %+v, want 5 failures and 1m", cfg.Remote.Breaker)
	}
	if cfg.RateLimit.Window() != time.Minute {
		t.Errorf("rate_limit window: got %v, want 1m", cfg.RateLimit.Window())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid rest", func(*Config) {}, ""},
		{"valid postgres without url", func(c *Config) {
			c.Remote.Driver = RemotePostgres
			c.Remote.URL = ""
		}, ""},
		{"bad port", func(c *Config) { c.Service.Port = 70000 }, "service.port: must be between 1 and 65535"},
		{"unknown store", func(c *Config) { c.LocalStore.Driver = "indexeddb" },
			"local_store.driver: must be one of: sqlite, redis, memory"},
		{"redis without address", func(c *Config) { c.LocalStore.Driver = StoreRedis },
			"redis.address: is required"},
		{"rest without key", func(c *Config) { c.Remote.APIKey = "" }, "remote.api_key: is required"},
		{"rest bad url", func(c *Config) { c.Remote.URL = "project.supabase.co" },
			"remote.url: must be an absolute http(s) URL"},
		{"bad timezone", func(c *Config) { c.Service.Timezone = "Mars/Olympus" }, "service.timezone"},
		{"negative rate limit", func(c *Config) { c.RateLimit.MaxViewsPerMinute = -1 },
			"rate_limit: limits must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Fatalf("Validate() unexpected error: %v", err)
			case tt.wantErr != "" && err == nil:
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			case tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr):
				t.Errorf("Validate() = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := "service:\n  port: 9000\n  timezone: Asia/Tokyo\naggregator:\n  batch_interval: 30m\n" +
		"remote:\n  driver: postgres\n  tables:\n    items_table: public.statements\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VIEW_AGENT_STORE", "memory")
	t.Setenv("VIEW_AGENT_FLUSH_ON_CLOSE", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err = cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	assertIntEqual(t, "service.port", 9000, cfg.Service.Port)
	assertStringEqual(t, "local_store.driver", StoreMemory, cfg.LocalStore.Driver)
	assertStringEqual(t, "remote.tables.items", "public.statements", cfg.Remote.Tables.Items)
	assertStringEqual(t, "remote.tables.views", "statement_views", cfg.Remote.Tables.Views)

	settings := cfg.AggregatorSettings()
	if settings.BatchInterval != 30*time.Minute || !settings.FlushOnClose {
		t.Errorf("AggregatorSettings() = %+v", settings)
	}

	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Tokyo" {
		t.Errorf("Location() = %v, %v; want Asia/Tokyo", loc, err)
	}
}

func assertStringEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}

func assertIntEqual(t *testing.T, field string, want, got int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %d, want %d", field, got, want)
	}
}
