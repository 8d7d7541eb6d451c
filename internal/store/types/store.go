package types

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-manager/internal/models"
)

// ErrTaskNotFound 查询成功但没有匹配的任务
var ErrTaskNotFound = errors.New("task not found")

// CodeError 存储层返回的业务失败（软失败），Code 原样返回给调用方
type CodeError struct {
	Code models.Code
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("task store: %s (code %d)", e.Code.Message(), e.Code)
}

// SoftError 将 code 包装为存储层软失败
func SoftError(code models.Code) error {
	return &CodeError{Code: code}
}

// Store 定义了任务存储接口
type Store interface {
	// InsertTask 创建 pending 状态的任务并返回新的 task_id
	InsertTask(ctx context.Context, agentID int, node, module, command string) (int, error)
	// GetUpgradeStatus 返回 agent 最近一次升级任务的状态，没有任务时返回 ""
	GetUpgradeStatus(ctx context.Context, agentID int) (string, error)
	UpdateUpgradeStatus(ctx context.Context, agentID int, status string, errorMsg *string) error
	GetLatestUpgradeByAgent(ctx context.Context, agentID int) (*models.Task, error)
	GetTaskByID(ctx context.Context, taskID int) (*models.Task, error)

	ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error)

	// TimeoutTasks 将无响应超过 timeout 的在途任务置为 timeout，返回下一个到期时间（无则为零值）
	TimeoutTasks(ctx context.Context, now time.Time, timeout time.Duration) (time.Time, error)
	// CancelInFlightTasks 将所有在途任务置为 cancelled，服务启动时调用
	CancelInFlightTasks(ctx context.Context) (int64, error)
	// DeleteTasksBefore 删除创建时间不晚于 cutoff 的任务
	DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close 释放存储占用的资源
	Close() error
}

// TaskFilter 定义任务过滤条件
type TaskFilter struct {
	AgentID *int
	Status  *models.TaskStatus
	Limit   int
}

// Config 存储配置
type Config struct {
	Type     string         `yaml:"type" env:"TYPE"`
	SQLite   SQLiteConfig   `yaml:"sqlite" envPrefix:"SQLITE_"`
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"dbname" env:"DBNAME"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"`
}
