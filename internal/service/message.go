package service

import (
	"errors"
	"fmt"

	"task-manager/internal/analyzer"
	"task-manager/internal/models"

	"github.com/rs/zerolog"
)

// 消息信封中的键
const (
	keyOrigin     = "origin"
	keyName       = "name"
	keyParameters = "parameters"
	keyAgents     = "agents"
	keyTasks      = "tasks"
)

var ErrInvalidMessage = errors.New("invalid task message")

// MessageResponse 批量消息的响应，data 与展开后的请求一一对应
type MessageResponse struct {
	Error   models.Code          `json:"error"`
	Data    []*analyzer.Response `json:"data"`
	Message string               `json:"message"`
}

// NewMessageResponse 包装一组任务响应
func NewMessageResponse(code models.Code, data []*analyzer.Response) *MessageResponse {
	if data == nil {
		data = []*analyzer.Response{}
	}
	return &MessageResponse{
		Error:   code,
		Data:    data,
		Message: code.Message(),
	}
}

// ParseMessage 将信封展开为逐个 agent 或逐个任务的请求。
//
//	{"origin":{"name":node,"module":module},"command":cmd,
//	 "parameters":{"agents":[...]|"tasks":[...],"status":s,"error_msg":e}}
func ParseMessage(data []byte, log zerolog.Logger) ([]*models.Request, error) {
	event, err := analyzer.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	origin, ok := event[keyOrigin].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidMessage, keyOrigin)
	}
	node := analyzer.ExtractString(origin, keyName)
	if node == nil {
		return nil, fmt.Errorf("%w: missing %s.%s", ErrInvalidMessage, keyOrigin, keyName)
	}
	module := analyzer.ExtractString(origin, models.KeyModule)
	if module == nil {
		return nil, fmt.Errorf("%w: missing %s.%s", ErrInvalidMessage, keyOrigin, models.KeyModule)
	}
	command := analyzer.ExtractString(event, models.KeyCommand)
	if command == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidMessage, models.KeyCommand)
	}
	params, ok := event[keyParameters].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidMessage, keyParameters)
	}

	status := analyzer.ExtractString(params, models.KeyStatus)
	errorMsg := analyzer.ExtractString(params, models.KeyErrorMsg)

	newRequest := func() *models.Request {
		return &models.Request{
			Node:     node,
			Module:   module,
			Command:  command,
			Status:   status,
			ErrorMsg: errorMsg,
		}
	}

	// agents 优先于 tasks
	key := keyAgents
	items, ok := params[keyAgents].([]any)
	if !ok {
		key = keyTasks
		items, _ = params[keyTasks].([]any)
	}

	requests := make([]*models.Request, 0, len(items))
	for i, item := range items {
		id := analyzer.ExtractInt(map[string]any{key: item}, key)
		if id == nil {
			log.Warn().Str("key", key).Int("index", i).Msg("Skipping invalid identifier in task message")
			continue
		}

		req := newRequest()
		if key == keyAgents {
			req.AgentID = id
		} else {
			req.TaskID = id
		}
		requests = append(requests, req)
	}

	return requests, nil
}
