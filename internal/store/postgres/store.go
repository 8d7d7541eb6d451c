package postgres

import (
	"fmt"

	"task-manager/internal/store/gormstore"
	"task-manager/internal/store/types"

	"gorm.io/driver/postgres"
)

// DSN 根据配置生成 PostgreSQL 连接串
func DSN(cfg types.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, sslMode)
}

// NewStore 创建PostgreSQL存储实例
func NewStore(cfg types.PostgresConfig) (*gormstore.Store, error) {
	store, err := gormstore.New(postgres.Open(DSN(cfg)))
	if err != nil {
		return nil, fmt.Errorf("opening postgres store: %w", err)
	}
	return store, nil
}
