package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/adapters/store"
	"github.com/mikey/greylist-filter/internal/config"
	"github.com/mikey/greylist-filter/internal/ports"
)

// StoreFactory creates the shared greylist store based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates a store based on the configuration
func (f *StoreFactory) CreateStore() (ports.GreylistStore, error) {
	sc := f.cfg.GetStore()

	f.logger.Info("Using greylist store", zap.String("type", sc.Type))

	switch sc.Type {
	case config.StoreMemcached:
		return store.NewMemcachedStore(sc.Servers, sc.Timeout, f.logger), nil
	case config.StoreRedis:
		return store.NewRedisStore(sc.RedisURL, sc.Timeout, f.logger)
	case config.StoreMemory:
		return store.NewMemoryStore(f.logger, sc.CleanupFrequency), nil
	case config.StoreSQLite:
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(sc.SQLitePath, f.logger, sc.CleanupFrequency)
	case config.StoreMySQL:
		return store.NewMySQLStore(sc.MySQLDSN, f.logger, sc.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}
