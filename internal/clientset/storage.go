package clientset

import (
	"fmt"

	"github.com/hitoshi/taita/internal/config"
	"github.com/hitoshi/taita/internal/database"
	"github.com/hitoshi/taita/internal/repository"
)

// OpenStorage は設定のドライバに応じたLocalStorageを開く。
// 返される関数で接続を閉じる。Postgresの場合はマイグレーションも適用する。
func OpenStorage(cfg *config.Config) (repository.LocalStorage, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageDriver {
	case config.StorageMemory:
		return repository.NewMemoryStorage(), noop, nil

	case config.StorageSQLite:
		db, err := database.OpenSQLite(cfg.StorageDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return repository.NewSQLiteStateRepo(db), db.Close, nil

	case config.StoragePostgres:
		if err := database.RunMigrations(cfg.StorageDSN); err != nil {
			return nil, noop, fmt.Errorf("failed to migrate postgres storage: %w", err)
		}
		db, err := database.Open(cfg.StorageDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return repository.NewPostgresStateRepo(db), db.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
}
