package factory

import (
	"fmt"

	"task-manager/internal/store/memory"
	"task-manager/internal/store/postgres"
	"task-manager/internal/store/sqlite"
	"task-manager/internal/store/types"
)

// NewStore 创建新的存储实例
func NewStore(cfg *types.Config) (types.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStore(), nil
	case "sqlite":
		store, err := sqlite.NewStore(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := postgres.NewStore(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
