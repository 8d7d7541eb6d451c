package analyzer

import (
	"context"

	"task-manager/internal/models"

	"github.com/rs/zerolog"
)

func (a *Analyzer) analyzeUpgrade(ctx context.Context, log zerolog.Logger, req *models.Request) (*Response, models.Code) {
	command := *req.Command

	switch command {
	case models.CommandUpgrade, models.CommandUpgradeCustom,
		models.CommandUpgradeGetStatus, models.CommandUpgradeUpdateStatus:
	default:
		return FormatDataResponse(models.CodeInvalidCommand, req.AgentID, req.TaskID, req.Status), models.CodeInvalidCommand
	}

	// agent 必须为正数，0 在存储中表示未找到
	if !validAgent(req.AgentID) {
		return FormatDataResponse(models.CodeInvalidAgentID, req.AgentID, req.TaskID, req.Status), models.CodeInvalidAgentID
	}
	agentID := *req.AgentID

	switch command {
	case models.CommandUpgradeGetStatus:
		status, err := a.store.GetUpgradeStatus(ctx, agentID)
		if err != nil {
			return a.upgradeFailure(log, err, req)
		}
		var current *string
		if status != "" {
			current = &status
		}
		return FormatDataResponse(models.CodeSuccess, req.AgentID, req.TaskID, current), models.CodeSuccess

	case models.CommandUpgradeUpdateStatus:
		status := ""
		if req.Status != nil {
			status = *req.Status
		}
		if err := a.store.UpdateUpgradeStatus(ctx, agentID, status, req.ErrorMsg); err != nil {
			return a.upgradeFailure(log, err, req)
		}
		log.Info().Int("agent", agentID).Str("status", status).Msg("Upgrade task status updated")
		return FormatDataResponse(models.CodeSuccess, req.AgentID, req.TaskID, req.Status), models.CodeSuccess

	default:
		taskID, err := a.store.InsertTask(ctx, agentID, *req.Node, models.ModuleUpgrade, command)
		if err != nil {
			return a.upgradeFailure(log, err, req)
		}
		log.Info().Int("agent", agentID).Int("task_id", taskID).Msg("Upgrade task created")
		return FormatDataResponse(models.CodeSuccess, req.AgentID, &taskID, req.Status), models.CodeSuccess
	}
}

// upgradeFailure 软失败原样返回；硬失败不生成响应，由传输层上报
func (a *Analyzer) upgradeFailure(log zerolog.Logger, err error, req *models.Request) (*Response, models.Code) {
	code, notFound := classify(err)
	if notFound {
		code = models.CodeDatabaseError
	}
	logStoreFailure(log, code, err)
	if code == models.CodeDatabaseError {
		return nil, code
	}
	return FormatDataResponse(code, req.AgentID, req.TaskID, req.Status), code
}
