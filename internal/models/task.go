package models

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusTimeout    TaskStatus = "timeout"
	TaskStatusLegacy     TaskStatus = "legacy"
	TaskStatusUpdating   TaskStatus = "updating"
)

// 模块与命令名称
const (
	ModuleUpgrade = "upgrade_module"
	ModuleAPI     = "api_module"

	CommandUpgrade             = "upgrade"
	CommandUpgradeCustom       = "upgrade_custom"
	CommandUpgradeGetStatus    = "upgrade_get_status"
	CommandUpgradeUpdateStatus = "upgrade_update_status"
	CommandUpgradeResult       = "upgrade_result"
	CommandTaskResult          = "task_result"
)

// Task 任务记录
type Task struct {
	ID             int        `json:"task_id" gorm:"column:task_id;primaryKey;autoIncrement"`
	AgentID        int        `json:"agent" gorm:"column:agent_id;not null;index"`
	Node           string     `json:"node" gorm:"column:node;not null"`
	Module         string     `json:"module" gorm:"column:module;not null"`
	Command        string     `json:"command" gorm:"column:command;not null"`
	Status         TaskStatus `json:"status" gorm:"column:status;not null;index"`
	ErrorMsg       *string    `json:"error_msg,omitempty" gorm:"column:error_message"`
	CreateTime     int64      `json:"create_time" gorm:"column:create_time;not null;index"`
	LastUpdateTime int64      `json:"last_update_time" gorm:"column:last_update_time"`
}

func (Task) TableName() string {
	return "tasks"
}

// IsTerminal 终态任务不再接受状态变更
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusDone, TaskStatusFailed, TaskStatusCancelled, TaskStatusTimeout:
		return true
	}
	return false
}

// InFlightStatuses 同一 agent 同时只能存在一个处于这些状态的升级任务
var InFlightStatuses = []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusUpdating}

func (s TaskStatus) IsInFlight() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusUpdating:
		return true
	}
	return false
}

// IsKnownStatus 是否为任务状态枚举中的值
func IsKnownStatus(status string) bool {
	_, ok := upgradeDescriptions[TaskStatus(status)]
	return ok
}

// ActivitySince 超时计时的起点：最近一次状态更新，从未更新过则取创建时间
func (t *Task) ActivitySince() int64 {
	if t.LastUpdateTime > 0 {
		return t.LastUpdateTime
	}
	return t.CreateTime
}

// IsUpdatable 处于该状态的升级任务是否还接受状态更新
func (s TaskStatus) IsUpdatable() bool {
	return !s.IsTerminal() && s != TaskStatusLegacy
}

// IsValidUpdate 是否为 upgrade_update_status 可以写入的状态
func IsValidUpdate(status string) bool {
	switch TaskStatus(status) {
	case TaskStatusInProgress, TaskStatusUpdating, TaskStatusDone, TaskStatusFailed, TaskStatusLegacy:
		return true
	}
	return false
}

func IsUpgradeCommand(command string) bool {
	return command == CommandUpgrade || command == CommandUpgradeCustom
}

var upgradeDescriptions = map[TaskStatus]string{
	TaskStatusPending:    "In queue",
	TaskStatusInProgress: "Updating",
	TaskStatusUpdating:   "Updating",
	TaskStatusDone:       "Updated",
	TaskStatusFailed:     "Error",
	TaskStatusCancelled:  "Task cancelled since the manager was restarted",
	TaskStatusTimeout:    "Timeout reached while waiting for the response from the agent",
	TaskStatusLegacy:     "Legacy upgrade: check the result manually since the agent cannot report the result of the task",
}

// UpgradeDescription 升级任务状态的可读描述
func (s TaskStatus) UpgradeDescription() string {
	if desc, ok := upgradeDescriptions[s]; ok {
		return desc
	}
	return "Invalid status"
}
