package models

// Code 任务响应中的 error 字段；数值一经发布不可更改
type Code int

const (
	CodeSuccess           Code = 0
	CodeInvalidMessage    Code = 1
	CodeInvalidModule     Code = 2
	CodeInvalidCommand    Code = 3
	CodeInvalidAgentID    Code = 4
	CodeInvalidTaskID     Code = 5
	CodeInvalidStatus     Code = 6
	CodeDatabaseNoTask    Code = 7
	CodeDatabaseError     Code = 8
	CodeUnknownError      Code = 9
	CodeUpgradeInProgress Code = 10
)

var codeMessages = map[Code]string{
	CodeSuccess:           "Success",
	CodeInvalidMessage:    "Invalid message",
	CodeInvalidModule:     "Invalid module",
	CodeInvalidCommand:    "Invalid command",
	CodeInvalidAgentID:    "Invalid agent ID",
	CodeInvalidTaskID:     "Invalid task ID",
	CodeInvalidStatus:     "Invalid status",
	CodeDatabaseNoTask:    "No task found for this agent/id",
	CodeDatabaseError:     "Database error",
	CodeUnknownError:      "Unknown error",
	CodeUpgradeInProgress: "Upgrade procedure already in progress",
}

// Message 返回响应中的 data 文本，表外的码返回 "Unknown error"
func (c Code) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return codeMessages[CodeUnknownError]
}
