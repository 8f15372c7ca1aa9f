// Package models - Service configuration and operational settings.
// This file defines configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, cache, upstreams, etc.)
// - Defaults that match the upstream contracts out of the box
// - Validation to catch misconfigurations before the first request
// - Secrets (upstream credentials) come from the environment, never from defaults
package models

import (
	"errors"
	"fmt"
	"time"
)

// Cache store type constants
const (
	CacheTypeRedis    = "redis"
	CacheTypeMemory   = "memory"
	CacheTypeSQLite   = "sqlite"
	CacheTypePostgres = "postgres"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Cache: Shared cache store used for caching and rate limit coordination
// - Upstreams: Pollution, allowlist and description APIs
// - Security: Inbound rate limiting
// - Logging: Structured logging and output configuration
// - Metrics / Observability: Prometheus metrics and OpenTelemetry tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Cache         CacheConfig         `yaml:"cache" json:"cache"`                 // Shared cache store
	Upstreams     UpstreamsConfig     `yaml:"upstreams" json:"upstreams"`         // External APIs
	Security      SecurityConfig      `yaml:"security" json:"security"`           // Inbound protection
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	Environment  string        `yaml:"environment" json:"environment"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

// CacheConfig selects the shared cache store. Every process instance that
// should share one rate limit and one cache must point at the same store.
type CacheConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Memory   MemoryConfig   `yaml:"memory" json:"memory"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	URL          string        `yaml:"url" json:"url"`
	Password     string        `yaml:"password" json:"-"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"-"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type MemoryConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type UpstreamsConfig struct {
	Pollution PollutionConfig `yaml:"pollution" json:"pollution"`
	Cities    CitiesConfig    `yaml:"cities" json:"cities"`
	Wiki      WikiConfig      `yaml:"wiki" json:"wiki"`
}

// PollutionConfig configures the token-authenticated, rate-limited pollution API.
//
// Retry Budget:
// - MaxRetries bounds the number of retries after the first call (total calls = MaxRetries+1)
// - BackoffBase is the first 429 delay when no Retry-After header is present; it doubles per attempt
type PollutionConfig struct {
	BaseURL     string            `yaml:"base_url" json:"base_url"`
	Username    string            `yaml:"username" json:"username"`
	Password    string            `yaml:"password" json:"-"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
	TokenTTL    time.Duration     `yaml:"token_ttl" json:"token_ttl"`
	CacheTTL    time.Duration     `yaml:"cache_ttl" json:"cache_ttl"`
	MaxRetries  int               `yaml:"max_retries" json:"max_retries"`
	BackoffBase time.Duration     `yaml:"backoff_base" json:"backoff_base"`
	RateLimit   WindowLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// WindowLimitConfig configures the store-coordinated fixed-window limiter.
// MaxWait of zero means a caller waits for admission without a ceiling.
type WindowLimitConfig struct {
	Key         string        `yaml:"key" json:"key"`
	Window      time.Duration `yaml:"window" json:"window"`
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Padding     time.Duration `yaml:"padding" json:"padding"`
	MaxWait     time.Duration `yaml:"max_wait" json:"max_wait"`
}

type CitiesConfig struct {
	BaseURL  string        `yaml:"base_url" json:"base_url"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type WikiConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	NegativeTTL time.Duration `yaml:"negative_ttl" json:"negative_ttl"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig configures the inbound per-client limiter in front of the HTTP API.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with defaults matching the upstream contracts.
//
// Default Values Rationale:
// - Pollution API: 5 requests per 10 second window, responses cached 30s, 3 retries from a 1s base
// - Allowlist: cached for an hour, the list of cities of a country rarely changes
// - Descriptions: 24h positive cache, 1h negative cache
// - Memory cache store: works without external services, switch to redis for multiple instances
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
			Environment:  "production",
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"*"},
				MaxAge:         86400,
			},
		},
		Cache: CacheConfig{
			Type: CacheTypeMemory,
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     10,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				ConnMaxLifetime: 5 * time.Minute,
				CleanupInterval: 10 * time.Minute,
			},
			Memory: MemoryConfig{
				CleanupInterval: time.Minute,
			},
		},
		Upstreams: UpstreamsConfig{
			Pollution: PollutionConfig{
				Timeout:     10 * time.Second,
				TokenTTL:    5 * time.Minute,
				CacheTTL:    30 * time.Second,
				MaxRetries:  3,
				BackoffBase: time.Second,
				RateLimit: WindowLimitConfig{
					Key:         "rl:polluted_api",
					Window:      10 * time.Second,
					MaxRequests: 5,
					Padding:     100 * time.Millisecond,
					MaxWait:     time.Minute,
				},
			},
			Cities: CitiesConfig{
				BaseURL:  "https://countriesnow.space",
				Timeout:  10 * time.Second,
				CacheTTL: time.Hour,
			},
			Wiki: WikiConfig{
				BaseURL:     "https://en.wikipedia.org/api/rest_v1",
				Timeout:     5 * time.Second,
				CacheTTL:    24 * time.Hour,
				NegativeTTL: time.Hour,
				UserAgent:   "polluted-cities/1.0",
				Concurrency: 8,
			},
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				BurstSize:         20,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "polluted",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}

	if err := c.Upstreams.Validate(); err != nil {
		return fmt.Errorf("invalid upstreams config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	return nil
}

func (cc *CacheConfig) Validate() error {
	switch cc.Type {
	case CacheTypeMemory:
		return nil
	case CacheTypeRedis:
		if cc.Redis.Addr == "" && cc.Redis.URL == "" {
			return errors.New("redis address or url is required when cache type is redis")
		}
		if cc.Redis.PoolSize < 0 {
			return errors.New("redis pool size cannot be negative")
		}
	case CacheTypeSQLite, CacheTypePostgres:
		if cc.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s cache", cc.Type)
		}
	default:
		return fmt.Errorf("invalid cache type: %s", cc.Type)
	}
	return nil
}

func (uc *UpstreamsConfig) Validate() error {
	p := uc.Pollution
	if p.BaseURL == "" {
		return errors.New("pollution base url is required")
	}
	if p.Username == "" || p.Password == "" {
		return errors.New("pollution credentials are required")
	}
	if p.TokenTTL <= 0 {
		return errors.New("pollution token ttl must be positive")
	}
	if p.CacheTTL < 0 {
		return errors.New("pollution cache ttl cannot be negative")
	}
	if p.MaxRetries < 0 {
		return errors.New("pollution max retries cannot be negative")
	}
	if p.BackoffBase <= 0 {
		return errors.New("pollution backoff base must be positive")
	}
	if err := p.RateLimit.Validate(); err != nil {
		return fmt.Errorf("pollution rate limit: %w", err)
	}

	if uc.Cities.BaseURL == "" {
		return errors.New("cities base url is required")
	}
	if uc.Cities.CacheTTL < 0 {
		return errors.New("cities cache ttl cannot be negative")
	}

	if uc.Wiki.BaseURL == "" {
		return errors.New("wiki base url is required")
	}
	if uc.Wiki.CacheTTL < 0 || uc.Wiki.NegativeTTL < 0 {
		return errors.New("wiki cache ttl cannot be negative")
	}
	if uc.Wiki.Concurrency <= 0 {
		return errors.New("wiki concurrency must be positive")
	}

	return nil
}

func (wc *WindowLimitConfig) Validate() error {
	if wc.Key == "" {
		return errors.New("key cannot be empty")
	}
	if wc.Window < time.Second {
		return errors.New("window must be at least one second")
	}
	if wc.MaxRequests <= 0 {
		return errors.New("max requests must be positive")
	}
	if wc.Padding < 0 {
		return errors.New("padding cannot be negative")
	}
	if wc.MaxWait < 0 {
		return errors.New("max wait cannot be negative")
	}
	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.RateLimit.Enabled {
		if sec.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("requests per minute must be positive")
		}
		if sec.RateLimit.BurstSize <= 0 {
			return errors.New("burst size must be positive")
		}
		if sec.RateLimit.CleanupInterval <= 0 {
			return errors.New("cleanup interval must be positive")
		}
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !oneOf(lc.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !oneOf(lc.Format, "json", "text") {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !oneOf(lc.Output, "stdout", "stderr", "file") {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	if !oneOf(oc.Tracing.Exporter, "stdout", "otlp") {
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("otlp endpoint is required for the otlp exporter")
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
