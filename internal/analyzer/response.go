package analyzer

import (
	"task-manager/internal/models"
)

// InvalidID 未设置的 agent / task_id 在响应中的取值
const InvalidID = -1

// Response 单个任务的响应文档，字段顺序即 JSON 输出顺序
type Response struct {
	Error      models.Code `json:"error"`
	Data       string      `json:"data"`
	Agent      int         `json:"agent"`
	TaskID     int         `json:"task_id"`
	Node       *string     `json:"node,omitempty"`
	Module     *string     `json:"module,omitempty"`
	Command    *string     `json:"command,omitempty"`
	Status     *string     `json:"status,omitempty"`
	ErrorMsg   *string     `json:"error_msg,omitempty"`
	CreateTime *int64      `json:"create_time,omitempty"`
	UpdateTime *int64      `json:"update_time,omitempty"`
}

// FormatDataResponse 由 (code, agent, task_id, status) 生成基础响应
func FormatDataResponse(code models.Code, agentID, taskID *int, status *string) *Response {
	resp := &Response{
		Error:  code,
		Data:   code.Message(),
		Agent:  orInvalid(agentID),
		TaskID: orInvalid(taskID),
	}
	if status != nil {
		s := *status
		resp.Status = &s
	}
	return resp
}

// AugmentWithResult 将任务记录附加到响应中。
// module 只在 task_result 请求中返回；upgrade_result 返回状态描述而不是原始状态。
func (r *Response) AugmentWithResult(task *models.Task, originCommand string) {
	r.Node = optional(task.Node)
	r.Command = optional(task.Command)
	if originCommand == models.CommandTaskResult {
		r.Module = optional(task.Module)
	}

	if task.Status != "" {
		status := string(task.Status)
		if originCommand == models.CommandUpgradeResult {
			status = task.Status.UpgradeDescription()
		}
		r.Status = &status
	}

	if task.ErrorMsg != nil {
		msg := *task.ErrorMsg
		r.ErrorMsg = &msg
	}

	createTime := task.CreateTime
	updateTime := task.LastUpdateTime
	r.CreateTime = &createTime
	r.UpdateTime = &updateTime
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orInvalid(id *int) int {
	if id == nil {
		return InvalidID
	}
	return *id
}
