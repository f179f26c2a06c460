package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Log        LogConfig        `mapstructure:"log"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Security   SecurityConfig   `mapstructure:"security"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Redis      RedisConfig      `mapstructure:"redis"`
	DevBackend DevBackendConfig `mapstructure:"dev_backend"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type BackendConfig struct {
	URL        string        `mapstructure:"url" validate:"required,url"`
	StreamPath string        `mapstructure:"stream_path" validate:"required,startswith=/"`
	RESTPath   string        `mapstructure:"rest_path" validate:"required,startswith=/"`
	HealthPath string        `mapstructure:"health_path" validate:"required,startswith=/"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ChunkSize  int           `mapstructure:"chunk_size" validate:"min=256"`
}

// StreamURL is the absolute URL of the backend notification stream.
func (b BackendConfig) StreamURL() string {
	return strings.TrimRight(b.URL, "/") + b.StreamPath
}

// RESTURL is the absolute base URL of the backend notification REST resource.
func (b BackendConfig) RESTURL() string {
	return strings.TrimRight(b.URL, "/") + b.RESTPath
}

func (b BackendConfig) HealthURL() string {
	return strings.TrimRight(b.URL, "/") + b.HealthPath
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	MetricsPath       string `mapstructure:"metrics_path" validate:"required,startswith=/"`
	Namespace         string `mapstructure:"namespace"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type DevBackendConfig struct {
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	SeedCount      int           `mapstructure:"seed_count" validate:"gte=0"`
	InitialBatch   int           `mapstructure:"initial_batch" validate:"gt=0"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	HeartbeatEvery time.Duration `mapstructure:"heartbeat_every"`
}

const envPrefix = "BREWERY"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("backend.url", "http://localhost:8081")
	v.SetDefault("backend.stream_path", "/notifications/stream")
	v.SetDefault("backend.rest_path", "/notifications")
	v.SetDefault("backend.health_path", "/health")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("backend.chunk_size", 4096)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 1.0)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("security.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("security.allowed_methods", []string{"GET", "PATCH", "OPTIONS"})
	v.SetDefault("security.allowed_headers", []string{"Origin", "Content-Type", "Accept", "Cookie", "Last-Event-ID"})

	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.namespace", "brewery_notify")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "brewery:notifications")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)

	v.SetDefault("dev_backend.port", 8081)
	v.SetDefault("dev_backend.seed_count", 25)
	v.SetDefault("dev_backend.initial_batch", 10)
	v.SetDefault("dev_backend.stats_interval", 30*time.Second)
	v.SetDefault("dev_backend.heartbeat_every", 15*time.Second)
}

// LoadConfig reads config.yml from the usual locations, layers BREWERY_*
// environment variables on top and validates the result. A missing config
// file is not an error; defaults apply.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

var validate = validator.New()

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config: %s failed on %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
