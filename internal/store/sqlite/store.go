package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"task-manager/internal/store/gormstore"
	"task-manager/internal/store/types"

	"github.com/glebarez/sqlite"
)

// NewStore 打开（必要时创建）SQLite 任务库
func NewStore(cfg types.SQLiteConfig) (*gormstore.Store, error) {
	dsn := cfg.Path
	if dsn != ":memory:" && dsn != "" {
		// 确保目录存在
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	store, err := gormstore.New(sqlite.Open(dsn))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	return store, nil
}
