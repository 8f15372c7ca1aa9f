package storage

import (
	"fmt"

	"polluted/internal/models"
)

// Factory provides a centralized way to create storage instances based on configuration.
// This allows for easy extensibility and provider swapping without code changes.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage provider based on the provided configuration.
// Supported providers:
//   - redis: shared store for multiple service instances
//   - memory: in-process store (single instance, development, tests)
//   - postgres: PostgreSQL table shared by multiple instances
//   - sqlite: embedded SQLite table (single host)
func (f *Factory) Create(config models.CacheConfig) (Storage, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	switch config.Type {
	case models.CacheTypeRedis:
		return NewRedisStorage(config.Redis)
	case models.CacheTypeMemory:
		return NewMemoryStorage(config.Memory.CleanupInterval), nil
	case models.CacheTypePostgres:
		return NewPostgresStorage(
			config.Database.DSN,
			config.Database.MaxOpenConns,
			config.Database.ConnMaxLifetime,
			config.Database.CleanupInterval,
		)
	case models.CacheTypeSQLite:
		return NewSQLiteStorage(config.Database.DSN, config.Database.CleanupInterval)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.CacheTypeMemory, models.CacheTypePostgres, models.CacheTypeRedis, models.CacheTypeSQLite}
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.CacheConfig) error {
	switch config.Type {
	case models.CacheTypeMemory:
		// Memory storage requires no additional configuration
	case models.CacheTypeRedis:
		if config.Redis.Addr == "" && config.Redis.URL == "" {
			return fmt.Errorf("address or url is required for redis storage")
		}
	case models.CacheTypePostgres, models.CacheTypeSQLite:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}
	return nil
}
