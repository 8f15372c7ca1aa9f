package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"polluted/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables.
// The un-prefixed names (PORT, REDIS_URL, POLLUTED_API_URL, ...) are the ones
// existing deployments already export; POLLUTED_* names take precedence.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	setInt(&config.Server.Port, "PORT", "POLLUTED_PORT")
	setString(&config.Server.Host, "POLLUTED_HOST")
	setString(&config.Server.Environment, "ENV", "POLLUTED_ENV")
	setDuration(&config.Server.ReadTimeout, "POLLUTED_READ_TIMEOUT")
	setDuration(&config.Server.WriteTimeout, "POLLUTED_WRITE_TIMEOUT")
	setDuration(&config.Server.IdleTimeout, "POLLUTED_IDLE_TIMEOUT")

	// Cache store configuration
	if redisURL := lookup("REDIS_URL", "POLLUTED_REDIS_URL"); redisURL != "" {
		config.Cache.Redis.URL = redisURL
		config.Cache.Type = models.CacheTypeRedis
	}
	setString(&config.Cache.Type, "POLLUTED_CACHE_TYPE")
	setString(&config.Cache.Redis.Addr, "POLLUTED_REDIS_ADDR")
	setString(&config.Cache.Redis.Password, "POLLUTED_REDIS_PASSWORD")
	setInt(&config.Cache.Redis.DB, "POLLUTED_REDIS_DB")
	setInt(&config.Cache.Redis.PoolSize, "POLLUTED_REDIS_POOL_SIZE")
	setString(&config.Cache.Database.DSN, "POLLUTED_DATABASE_DSN")
	setInt(&config.Cache.Database.MaxOpenConns, "POLLUTED_DATABASE_MAX_OPEN_CONNS")

	// Pollution API
	pollution := &config.Upstreams.Pollution
	setString(&pollution.BaseURL, "POLLUTED_API_URL")
	setString(&pollution.Username, "POLLUTED_API_USER")
	setString(&pollution.Password, "POLLUTED_API_PASSWORD")
	setDuration(&pollution.TokenTTL, "POLLUTED_API_TOKEN_TTL")
	setDuration(&pollution.CacheTTL, "POLLUTED_API_CACHE_TTL")
	setInt(&pollution.MaxRetries, "POLLUTED_API_MAX_RETRIES")
	setDuration(&pollution.BackoffBase, "POLLUTED_API_BACKOFF_BASE")
	setDuration(&pollution.RateLimit.Window, "POLLUTED_API_RATE_WINDOW")
	setInt(&pollution.RateLimit.MaxRequests, "POLLUTED_API_RATE_MAX")
	setDuration(&pollution.RateLimit.MaxWait, "POLLUTED_API_RATE_MAX_WAIT")

	// Allowlist and description APIs
	setString(&config.Upstreams.Cities.BaseURL, "CITIES_API_URL", "POLLUTED_CITIES_API_URL")
	setString(&config.Upstreams.Wiki.BaseURL, "POLLUTED_WIKI_API_URL")
	setInt(&config.Upstreams.Wiki.Concurrency, "POLLUTED_WIKI_CONCURRENCY")

	// Inbound rate limiting
	setBool(&config.Security.RateLimit.Enabled, "POLLUTED_RATE_LIMIT_ENABLED")
	setInt(&config.Security.RateLimit.RequestsPerMinute, "POLLUTED_RATE_LIMIT_RPM")
	setInt(&config.Security.RateLimit.BurstSize, "POLLUTED_RATE_LIMIT_BURST")

	// Logging configuration
	setString(&config.Logging.Level, "POLLUTED_LOG_LEVEL")
	setString(&config.Logging.Format, "POLLUTED_LOG_FORMAT")
	setString(&config.Logging.Output, "POLLUTED_LOG_OUTPUT")
	setString(&config.Logging.FilePath, "POLLUTED_LOG_FILE_PATH")

	// Metrics and tracing
	setBool(&config.Metrics.Enabled, "POLLUTED_METRICS_ENABLED")
	setString(&config.Metrics.Path, "POLLUTED_METRICS_PATH")
	setInt(&config.Metrics.Port, "POLLUTED_METRICS_PORT")
	setBool(&config.Observability.Tracing.Enabled, "POLLUTED_TRACING_ENABLED")
	setString(&config.Observability.Tracing.Exporter, "POLLUTED_TRACING_EXPORTER")
	setString(&config.Observability.Tracing.OTLPEndpoint, "POLLUTED_OTLP_ENDPOINT")
}

// lookup returns the value of the last set variable among names.
func lookup(names ...string) string {
	value := ""
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			value = v
		}
	}
	return value
}

func setString(dst *string, names ...string) {
	if v := lookup(names...); v != "" {
		*dst = v
	}
}

func setInt(dst *int, names ...string) {
	if v := lookup(names...); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, names ...string) {
	if v := lookup(names...); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func setDuration(dst *time.Duration, names ...string) {
	if v := lookup(names...); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Upstreams.Pollution.BaseURL = "https://pollution.example.com"
	config.Upstreams.Pollution.Username = "your-username"
	config.Upstreams.Pollution.Password = "your-password"

	config.Cache.Type = models.CacheTypeRedis
	config.Cache.Redis.Addr = "localhost:6379"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
