package analyzer

import (
	"context"
	"errors"

	"task-manager/internal/models"
	"task-manager/internal/store/types"

	"github.com/rs/zerolog"
)

// Analyzer 将单个任务请求分发到对应模块并生成响应。
// Analyzer 不持有可变状态，可被多个 worker 并发使用。
type Analyzer struct {
	store types.Store
	log   zerolog.Logger
}

func New(store types.Store, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		store: store,
		log:   log,
	}
}

// Analyze 分发请求，返回响应及结果码。
//
// 响应为 nil 表示不生成响应文档：请求缺少 node、module 或 command 时结果码为
// CodeSuccess，存储写入失败时为 CodeDatabaseError。如何上报由传输层决定。
func (a *Analyzer) Analyze(ctx context.Context, req *models.Request) (*Response, models.Code) {
	if req == nil || req.Node == nil || req.Module == nil || req.Command == nil {
		a.log.Debug().Msg("Request without node, module or command rejected")
		return nil, models.CodeSuccess
	}

	log := a.log.With().
		Str("module", *req.Module).
		Str("command", *req.Command).
		Logger()
	log.Debug().Msg("Analyzing task request")

	switch *req.Module {
	case models.ModuleUpgrade:
		return a.analyzeUpgrade(ctx, log, req)
	case models.ModuleAPI:
		return a.analyzeAPI(ctx, log, req)
	default:
		return FormatDataResponse(models.CodeInvalidModule, req.AgentID, req.TaskID, req.Status), models.CodeInvalidModule
	}
}

// classify 将存储层错误归类为软失败码、未找到或硬失败
func classify(err error) (code models.Code, notFound bool) {
	var codeErr *types.CodeError
	switch {
	case errors.As(err, &codeErr) && codeErr.Code > models.CodeSuccess:
		return codeErr.Code, false
	case errors.Is(err, types.ErrTaskNotFound):
		return models.CodeDatabaseNoTask, true
	default:
		return models.CodeDatabaseError, false
	}
}
