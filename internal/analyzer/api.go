package analyzer

import (
	"context"

	"task-manager/internal/models"
	"task-manager/internal/store/types"

	"github.com/rs/zerolog"
)

// analyzeAPI 处理 api_module 的只读查询，node 字段不参与
func (a *Analyzer) analyzeAPI(ctx context.Context, log zerolog.Logger, req *models.Request) (*Response, models.Code) {
	command := *req.Command

	switch command {
	case models.CommandUpgradeResult:
		if !validAgent(req.AgentID) {
			return FormatDataResponse(models.CodeInvalidAgentID, req.AgentID, req.TaskID, nil), models.CodeInvalidAgentID
		}

		task, err := a.store.GetLatestUpgradeByAgent(ctx, *req.AgentID)
		if err == nil && (task == nil || task.ID == 0) {
			// 存储返回 0 与未找到等价
			task, err = nil, types.ErrTaskNotFound
		}
		if err != nil {
			code, notFound := classify(err)
			if notFound {
				return FormatDataResponse(code, req.AgentID, nil, nil), code
			}
			logStoreFailure(log, code, err)
			return FormatDataResponse(code, req.AgentID, req.TaskID, nil), code
		}

		resp := FormatDataResponse(models.CodeSuccess, req.AgentID, &task.ID, nil)
		resp.AugmentWithResult(task, command)
		return resp, models.CodeSuccess

	case models.CommandTaskResult:
		if req.TaskID == nil {
			return FormatDataResponse(models.CodeInvalidTaskID, req.AgentID, req.TaskID, nil), models.CodeInvalidTaskID
		}

		task, err := a.store.GetTaskByID(ctx, *req.TaskID)
		if err == nil && (task == nil || task.AgentID == 0) {
			task, err = nil, types.ErrTaskNotFound
		}
		if err != nil {
			code, notFound := classify(err)
			if notFound {
				return FormatDataResponse(code, nil, req.TaskID, nil), code
			}
			logStoreFailure(log, code, err)
			return FormatDataResponse(code, req.AgentID, req.TaskID, nil), code
		}

		resp := FormatDataResponse(models.CodeSuccess, &task.AgentID, req.TaskID, nil)
		resp.AugmentWithResult(task, command)
		return resp, models.CodeSuccess

	default:
		return FormatDataResponse(models.CodeInvalidCommand, req.AgentID, req.TaskID, nil), models.CodeInvalidCommand
	}
}

func validAgent(agentID *int) bool {
	return agentID != nil && *agentID > 0
}

func logStoreFailure(log zerolog.Logger, code models.Code, err error) {
	if code == models.CodeDatabaseError {
		log.Error().Err(err).Msg("Task store failure")
		return
	}
	log.Debug().Err(err).Int("code", int(code)).Msg("Task store rejected request")
}
