package config

import (
	"time"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/circuitbreaker"
	infraconfig "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/config"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/profiling"
	infraredis "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/redis"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/aggregator"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/iplookup"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/remote"
)

// Default configuration values.
const (
	defaultServiceName = "view-agent"
	defaultServiceHost = "127.0.0.1"
	defaultServicePort = 8095
	defaultVersion     = "0.1.0"
	defaultTimezone    = "Local"

	defaultStoreDriver = StoreSQLite
	defaultStorePath   = "data/views.db"

	defaultRemoteDriver   = RemoteREST
	defaultRetryAttempts  = 3
	defaultDBName         = "mondai"
	defaultMaxViewsPerMin = 120
	defaultWindowSeconds  = 60
)

// Local store drivers.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Remote drivers.
const (
	RemotePostgres = "postgres"
	RemoteREST     = "rest"
)

// Config holds the application configuration.
type Config struct {
	Service    ServiceConfig              `yaml:"service"`
	Aggregator AggregatorConfig           `yaml:"aggregator"`
	LocalStore LocalStoreConfig           `yaml:"local_store"`
	Redis      infraredis.Config          `yaml:"redis"`
	Database   infraconfig.DatabaseConfig `yaml:"database"`
	Remote     RemoteConfig               `yaml:"remote"`
	IPLookup   IPLookupConfig             `yaml:"ip_lookup"`
	RateLimit  RateLimitConfig            `yaml:"rate_limit"`
	Logging    infraconfig.LoggingConfig  `yaml:"logging"`
	Profiling  profiling.Config           `yaml:"profiling"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Host        string   `env:"VIEW_AGENT_HOST"         yaml:"host"`
	Port        int      `env:"VIEW_AGENT_PORT"         yaml:"port"`
	Debug       bool     `env:"APP_DEBUG"               yaml:"debug"`
	CORSOrigins []string `env:"VIEW_AGENT_CORS_ORIGINS" yaml:"cors_origins"`
	// UserAgent is reported until a browser user agent has been observed.
	UserAgent string `env:"VIEW_AGENT_USER_AGENT" yaml:"user_agent"`
	// Timezone decides the calendar day a view belongs to.
	Timezone string `env:"VIEW_AGENT_TIMEZONE" yaml:"timezone"`
}

// AggregatorConfig mirrors aggregator.Config.
type AggregatorConfig struct {
	BatchInterval time.Duration `env:"VIEW_AGENT_BATCH_INTERVAL" yaml:"batch_interval"`
	MarkerTTL     time.Duration `yaml:"marker_ttl"`
	RemoteTimeout time.Duration `env:"VIEW_AGENT_REMOTE_TIMEOUT" yaml:"remote_timeout"`
	KeyPrefix     string        `yaml:"key_prefix"`
	FlushOnClose  bool          `env:"VIEW_AGENT_FLUSH_ON_CLOSE" yaml:"flush_on_close"`
}

// LocalStoreConfig selects the durable store for the profile state.
type LocalStoreConfig struct {
	Driver string `env:"VIEW_AGENT_STORE"      yaml:"driver"`
	Path   string `env:"VIEW_AGENT_STORE_PATH" yaml:"path"`
	// RedisPrefix namespaces keys when several agents share one Redis.
	RedisPrefix string `env:"VIEW_AGENT_REDIS_PREFIX" yaml:"redis_prefix"`
}

// RemoteConfig selects and configures the backend.
type RemoteConfig struct {
	Driver        string        `env:"REMOTE_DRIVER"     yaml:"driver"`
	URL           string        `env:"SUPABASE_URL"      yaml:"url"`
	APIKey        string        `env:"SUPABASE_ANON_KEY" yaml:"api_key"`
	Tables        remote.Tables `yaml:"tables"`
	RetryAttempts int           `yaml:"retry_attempts"`
	// Breaker opens after consecutive backend failures.
	Breaker circuitbreaker.Config `yaml:"breaker"`
}

// IPLookupConfig configures the public IP lookup.
type IPLookupConfig struct {
	Endpoint string        `env:"IP_LOOKUP_ENDPOINT" yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	MaxViewsPerMinute int `yaml:"max_views_per_minute"`
	WindowSeconds     int `yaml:"window_seconds"`
}

// Window returns the rate-limit window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setAggregatorDefaults(&cfg.Aggregator)
	setLocalStoreDefaults(&cfg.LocalStore)
	setRemoteDefaults(&cfg.Remote)
	setRateLimitDefaults(&cfg.RateLimit)

	if cfg.Database.Database == "" {
		cfg.Database.Database = defaultDBName
	}
	cfg.Database.SetDefaults()
	cfg.Logging.SetDefaults()

	if cfg.IPLookup.Endpoint == "" {
		cfg.IPLookup.Endpoint = iplookup.DefaultEndpoint
	}
	if cfg.IPLookup.Timeout == 0 {
		cfg.IPLookup.Timeout = iplookup.DefaultTimeout
	}
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Host == "" {
		svc.Host = defaultServiceHost
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.Timezone == "" {
		svc.Timezone = defaultTimezone
	}
}

func setAggregatorDefaults(agg *AggregatorConfig) {
	if agg.BatchInterval == 0 {
		agg.BatchInterval = aggregator.DefaultBatchInterval
	}
	if agg.MarkerTTL == 0 {
		agg.MarkerTTL = aggregator.DefaultMarkerTTL
	}
	if agg.RemoteTimeout == 0 {
		agg.RemoteTimeout = aggregator.DefaultRemoteTimeout
	}
	if agg.KeyPrefix == "" {
		agg.KeyPrefix = aggregator.DefaultKeyPrefix
	}
}

func setLocalStoreDefaults(ls *LocalStoreConfig) {
	if ls.Driver == "" {
		ls.Driver = defaultStoreDriver
	}
	if ls.Path == "" {
		ls.Path = defaultStorePath
	}
}

func setRemoteDefaults(r *RemoteConfig) {
	if r.Driver == "" {
		r.Driver = defaultRemoteDriver
	}
	if r.RetryAttempts == 0 {
		r.RetryAttempts = defaultRetryAttempts
	}
	r.Tables.SetDefaults()
	if r.Breaker.FailureThreshold == 0 {
		r.Breaker.FailureThreshold = circuitbreaker.DefaultFailureThreshold
	}
	if r.Breaker.OpenTimeout == 0 {
		r.Breaker.OpenTimeout = circuitbreaker.DefaultOpenTimeout
	}
}

func setRateLimitDefaults(rl *RateLimitConfig) {
	if rl.MaxViewsPerMinute == 0 {
		rl.MaxViewsPerMinute = defaultMaxViewsPerMin
	}
	if rl.WindowSeconds == 0 {
		rl.WindowSeconds = defaultWindowSeconds
	}
}

// Location resolves Service.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Service.Timezone == defaultTimezone {
		return time.Local, nil
	}
	return time.LoadLocation(c.Service.Timezone)
}

// AggregatorSettings converts the aggregator section.
func (c *Config) AggregatorSettings() aggregator.Config {
	return aggregator.Config{
		BatchInterval: c.Aggregator.BatchInterval,
		MarkerTTL:     c.Aggregator.MarkerTTL,
		RemoteTimeout: c.Aggregator.RemoteTimeout,
		KeyPrefix:     c.Aggregator.KeyPrefix,
		FlushOnClose:  c.Aggregator.FlushOnClose,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := infraconfig.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return &infraconfig.ValidationError{Field: "service.timezone", Message: err.Error()}
	}
	if c.Aggregator.BatchInterval < 0 || c.Aggregator.RemoteTimeout < 0 {
		return &infraconfig.ValidationError{Field: "aggregator", Message: "durations must not be negative"}
	}
	if c.RateLimit.MaxViewsPerMinute < 1 || c.RateLimit.WindowSeconds < 1 {
		return &infraconfig.ValidationError{Field: "rate_limit", Message: "limits must be positive"}
	}
	if err := c.validateLocalStore(); err != nil {
		return err
	}
	return c.validateRemote()
}

func (c *Config) validateLocalStore() error {
	if err := infraconfig.ValidateOneOf("local_store.driver", c.LocalStore.Driver,
		StoreSQLite, StoreRedis, StoreMemory); err != nil {
		return err
	}
	switch c.LocalStore.Driver {
	case StoreSQLite:
		return infraconfig.ValidateRequired("local_store.path", c.LocalStore.Path)
	case StoreRedis:
		return infraconfig.ValidateRequired("redis.address", c.Redis.Address)
	}
	return nil
}

func (c *Config) validateRemote() error {
	if err := infraconfig.ValidateOneOf("remote.driver", c.Remote.Driver, RemotePostgres, RemoteREST); err != nil {
		return err
	}
	if err := c.Remote.Tables.Validate(); err != nil {
		return &infraconfig.ValidationError{Field: "remote.tables", Message: err.Error()}
	}
	if c.Remote.Driver == RemoteREST {
		if err := infraconfig.ValidateURL("remote.url", c.Remote.URL); err != nil {
			return err
		}
		return infraconfig.ValidateRequired("remote.api_key", c.Remote.APIKey)
	}
	return nil
}
