package core

import (
	"context"
	"epoccore/internal/config"
	"epoccore/internal/infra/persistence/memory"
	"epoccore/internal/infra/persistence/postgres"
	"epoccore/internal/infra/persistence/sqlite"
	"epoccore/pkg/domain"
	"fmt"
)

// Storage is the object store a Service drives.
type Storage interface {
	domain.Storage
	// UIDs lists the persisted uids of kind t in ascending order.
	UIDs(ctx context.Context, t domain.ObjType) ([]int, error)
	Close() error
}

type memoryStorage struct {
	*memory.Store
}

func (memoryStorage) Close() error { return nil }

// NewMemoryStorage returns an ephemeral Storage for tests and dry runs.
func NewMemoryStorage() Storage {
	return memoryStorage{Store: memory.NewStore()}
}

// OpenStorage selects a back end from cfg. An empty driver means sqlite.
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.StorageSQLite
	}
	switch driver {
	case config.StorageMemory:
		return NewMemoryStorage(), nil
	case config.StorageSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = sqlite.DefaultPath
		}
		st, err := sqlite.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		return st, nil
	case config.StoragePostgres:
		dsn := cfg.PostgresDSN
		if dsn == "" {
			dsn = postgres.DefaultDSN
		}
		st, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
