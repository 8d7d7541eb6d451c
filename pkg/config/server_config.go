package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"task-manager/internal/store/types"
	"task-manager/pkg/logger"
)

// ServerConfig 服务端配置
type ServerConfig struct {
	Server      ListenConfig      `yaml:"server" envPrefix:"SERVER_"`
	Log         LogConfig         `yaml:"log" envPrefix:"LOG_"`
	Storage     types.Config      `yaml:"storage" envPrefix:"STORAGE_"`
	TaskManager TaskManagerConfig `yaml:"task_manager" envPrefix:"TASK_"`
}

// ListenConfig HTTP 与 gRPC 共用的监听地址
type ListenConfig struct {
	Host string          `yaml:"host" env:"HOST"`
	Port int             `yaml:"port" env:"PORT"`
	TLS  ServerTLSConfig `yaml:"tls" envPrefix:"TLS_"`
	// ShutdownTimeout 优雅退出的最长等待时间
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type ServerTLSConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Cert    string `yaml:"cert" env:"CERT"`
	Key     string `yaml:"key" env:"KEY"`
}

// LogConfig 日志配置
type LogConfig struct {
	Debug    bool            `yaml:"debug" env:"DEBUG"`
	File     string          `yaml:"file" env:"FILE"`
	Rotation logger.Rotation `yaml:"rotation"`
}

// TaskManagerConfig 任务维护参数
type TaskManagerConfig struct {
	// TaskTimeout in_progress 任务在无更新多久后置为 timeout
	TaskTimeout time.Duration `yaml:"task_timeout" env:"TIMEOUT"`
	// CleanupTime 任务记录保留时长
	CleanupTime     time.Duration `yaml:"cleanup_time" env:"CLEANUP_TIME"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

// Address 返回监听地址
func (c ListenConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadServerConfig 在默认配置之上加载配置文件与环境变量
func LoadServerConfig(path string, workspaceRoot string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := LoadConfig(path, cfg); err != nil {
		return nil, err
	}

	// 处理相对路径
	if err := cfg.resolveRelativePaths(workspaceRoot); err != nil {
		return nil, fmt.Errorf("resolving paths: %w", err)
	}

	return cfg, nil
}

// Validate 实现Config接口
func (c *ServerConfig) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.Cert == "" || c.Server.TLS.Key == "") {
		return fmt.Errorf("server.tls.cert and server.tls.key are required when tls is enabled")
	}

	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
	case "postgres":
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.DBName == "" {
			return fmt.Errorf("storage.postgres.host and storage.postgres.dbname are required")
		}
	case "":
		return fmt.Errorf("storage.type is required")
	default:
		return fmt.Errorf("unknown storage.type: %s", c.Storage.Type)
	}

	if c.TaskManager.TaskTimeout <= 0 {
		return fmt.Errorf("invalid task_manager.task_timeout: %s", c.TaskManager.TaskTimeout)
	}
	if c.TaskManager.CleanupTime <= 0 {
		return fmt.Errorf("invalid task_manager.cleanup_time: %s", c.TaskManager.CleanupTime)
	}
	if c.TaskManager.CleanupInterval <= 0 {
		return fmt.Errorf("invalid task_manager.cleanup_interval: %s", c.TaskManager.CleanupInterval)
	}
	return nil
}

// resolveRelativePaths 处理相对路径
func (c *ServerConfig) resolveRelativePaths(baseDir string) error {
	resolve := func(path *string) {
		if *path != "" && !filepath.IsAbs(*path) {
			*path = filepath.Join(baseDir, *path)
		}
	}

	resolve(&c.Log.File)
	resolve(&c.Server.TLS.Cert)
	resolve(&c.Server.TLS.Key)

	// 处理SQLite数据库路径
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path != ":memory:" {
		resolve(&c.Storage.SQLite.Path)
		// 确保数据库目录存在
		if err := os.MkdirAll(filepath.Dir(c.Storage.SQLite.Path), 0755); err != nil {
			return fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	return nil
}

// DefaultServerConfig 返回默认服务端配置
func DefaultServerConfig() *ServerConfig {
	cfg := &ServerConfig{}

	// 服务器配置
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ShutdownTimeout = 10 * time.Second

	// 日志配置
	cfg.Log.File = "data/task-manager.log"
	cfg.Log.Rotation = logger.DefaultRotation()

	// 存储配置
	cfg.Storage.Type = "sqlite"
	cfg.Storage.SQLite.Path = "data/tasks.db"
	cfg.Storage.Postgres.Port = 5432

	// 任务维护
	cfg.TaskManager.TaskTimeout = 15 * time.Minute
	cfg.TaskManager.CleanupTime = 7 * 24 * time.Hour
	cfg.TaskManager.CleanupInterval = 24 * time.Hour

	return cfg
}
