package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// AgentConfig 客户端配置结构
type AgentConfig struct {
	// Node 请求中的 node 字段
	Node string `yaml:"node" env:"AGENT_NODE"`

	// 服务端连接信息
	Server AgentServerConfig `yaml:"server" envPrefix:"AGENT_SERVER_"`

	Log LogConfig `yaml:"log" envPrefix:"AGENT_LOG_"`
}

type AgentServerConfig struct {
	Address string          `yaml:"address" env:"ADDRESS"` // 服务器地址
	Timeout time.Duration   `yaml:"timeout" env:"TIMEOUT"`
	TLS     ClientTLSConfig `yaml:"tls" envPrefix:"TLS_"`
}

type ClientTLSConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	CACert     string `yaml:"ca_cert" env:"CA_CERT"`
	ServerName string `yaml:"server_name" env:"SERVER_NAME"`
}

// LoadAgentConfig 加载客户端配置
func LoadAgentConfig(path string, workspaceRoot string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if err := LoadConfig(path, cfg); err != nil {
		return nil, err
	}

	// 处理相对路径
	cfg.resolveRelativePaths(workspaceRoot)

	return cfg, nil
}

// Validate 实现Config接口
func (c *AgentConfig) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("invalid server.timeout: %s", c.Server.Timeout)
	}
	return nil
}

func (c *AgentConfig) resolveRelativePaths(baseDir string) {
	for _, path := range []*string{&c.Server.TLS.CACert, &c.Log.File} {
		if *path != "" && !filepath.IsAbs(*path) {
			*path = filepath.Join(baseDir, *path)
		}
	}
}

// DefaultAgentConfig 返回默认客户端配置
func DefaultAgentConfig() *AgentConfig {
	cfg := &AgentConfig{}
	cfg.Server.Address = "localhost:8080"
	cfg.Server.Timeout = 10 * time.Second
	return cfg
}
