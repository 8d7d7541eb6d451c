package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadServerConfig(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
log:
  debug: true
  file: logs/server.log
storage:
  type: sqlite
  sqlite:
    path: db/tasks.db
task_manager:
  task_timeout: 30m
  cleanup_time: 48h
`)

	cfg, err := LoadServerConfig(path, root)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address())
	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, filepath.Join(root, "logs/server.log"), cfg.Log.File)
	assert.Equal(t, filepath.Join(root, "db/tasks.db"), cfg.Storage.SQLite.Path)
	assert.DirExists(t, filepath.Join(root, "db"))
	assert.Equal(t, 30*time.Minute, cfg.TaskManager.TaskTimeout)
	assert.Equal(t, 48*time.Hour, cfg.TaskManager.CleanupTime)
	// 未设置的字段保留默认值
	assert.Equal(t, 24*time.Hour, cfg.TaskManager.CleanupInterval)
	assert.Equal(t, 100, cfg.Log.Rotation.MaxSizeMB)
}

func TestLoadServerConfigEnvOverrides(t *testing.T) {
	t.Setenv("TASKMGR_SERVER_PORT", "9443")
	t.Setenv("TASKMGR_STORAGE_TYPE", "postgres")
	t.Setenv("TASKMGR_STORAGE_POSTGRES_HOST", "db.internal")
	t.Setenv("TASKMGR_STORAGE_POSTGRES_DBNAME", "tasks")
	t.Setenv("TASKMGR_TASK_TIMEOUT", "5m")

	path := writeConfig(t, `
server:
  port: 8081
storage:
  type: memory
`)

	cfg, err := LoadServerConfig(path, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "db.internal", cfg.Storage.Postgres.Host)
	assert.Equal(t, 5432, cfg.Storage.Postgres.Port)
	assert.Equal(t, 5*time.Minute, cfg.TaskManager.TaskTimeout)
}

func TestLoadServerConfigWithoutFile(t *testing.T) {
	root := t.TempDir()
	cfg, err := LoadServerConfig("", root)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, filepath.Join(root, "data/tasks.db"), cfg.Storage.SQLite.Path)
	assert.Equal(t, 15*time.Minute, cfg.TaskManager.TaskTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.TaskManager.CleanupTime)
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ServerConfig)
		errMsg string
	}{
		{"empty host", func(c *ServerConfig) { c.Server.Host = "" }, "server.host"},
		{"bad port", func(c *ServerConfig) { c.Server.Port = 70000 }, "server.port"},
		{"tls without cert", func(c *ServerConfig) { c.Server.TLS.Enabled = true }, "server.tls"},
		{"unknown storage", func(c *ServerConfig) { c.Storage.Type = "redis" }, "unknown storage.type"},
		{"missing storage", func(c *ServerConfig) { c.Storage.Type = "" }, "storage.type is required"},
		{"postgres without host", func(c *ServerConfig) { c.Storage.Type = "postgres" }, "storage.postgres"},
		{"zero timeout", func(c *ServerConfig) { c.TaskManager.TaskTimeout = 0 }, "task_timeout"},
		{"negative cleanup", func(c *ServerConfig) { c.TaskManager.CleanupTime = -time.Hour }, "cleanup_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, DefaultServerConfig().Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"), t.TempDir())
	assert.ErrorContains(t, err, "reading config file")

	_, err = LoadServerConfig(writeConfig(t, "server: [1, 2"), t.TempDir())
	assert.ErrorContains(t, err, "parsing config file")

	_, err = LoadServerConfig(writeConfig(t, "server:\n  port: -1\n"), t.TempDir())
	assert.ErrorContains(t, err, "validating config")
}

func TestLoadAgentConfig(t *testing.T) {
	root := t.TempDir()
	t.Setenv("TASKMGR_AGENT_NODE", "worker-3")

	cfg, err := LoadAgentConfig(writeConfig(t, `
server:
  address: manager:8080
  timeout: 3s
  tls:
    enabled: true
    ca_cert: certs/ca.pem
`), root)
	require.NoError(t, err)

	assert.Equal(t, "worker-3", cfg.Node)
	assert.Equal(t, "manager:8080", cfg.Server.Address)
	assert.Equal(t, 3*time.Second, cfg.Server.Timeout)
	assert.Equal(t, filepath.Join(root, "certs/ca.pem"), cfg.Server.TLS.CACert)

	cfg = DefaultAgentConfig()
	cfg.Server.Address = ""
	assert.Error(t, cfg.Validate())
}
