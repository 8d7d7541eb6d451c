package models

// Request 单个任务请求，nil 字段表示未设置
type Request struct {
	Node     *string
	Module   *string
	Command  *string
	AgentID  *int
	TaskID   *int
	Status   *string
	ErrorMsg *string
}

// 请求中可识别的 JSON 键
const (
	KeyNode     = "node"
	KeyModule   = "module"
	KeyCommand  = "command"
	KeyAgent    = "agent"
	KeyTaskID   = "task_id"
	KeyStatus   = "status"
	KeyErrorMsg = "error_msg"
)
