package service

import (
	"context"

	"task-manager/internal/analyzer"
	"task-manager/internal/metrics"
	"task-manager/internal/models"
	"task-manager/internal/store/types"

	"github.com/rs/zerolog"
)

// TaskService 连接传输层与分析器
type TaskService struct {
	store    types.Store
	analyzer *analyzer.Analyzer
	log      zerolog.Logger
}

func NewTaskService(store types.Store, log zerolog.Logger) *TaskService {
	return &TaskService{
		store:    store,
		analyzer: analyzer.New(store, log),
		log:      log,
	}
}

// Analyze 处理单个已解析的请求
func (s *TaskService) Analyze(ctx context.Context, req *models.Request) (*analyzer.Response, models.Code) {
	resp, code := s.analyzer.Analyze(ctx, req)
	if resp == nil {
		metrics.RecordRejected(code)
	} else {
		metrics.RecordAnalysis(*req.Module, resp.Error)
	}
	return resp, code
}

// AnalyzeJSON 解析并处理单个 JSON 请求；无法解析时返回 error
func (s *TaskService) AnalyzeJSON(ctx context.Context, data []byte) (*analyzer.Response, models.Code, error) {
	req, err := analyzer.ParseRequest(data)
	if err != nil {
		return nil, models.CodeInvalidMessage, err
	}
	resp, code := s.Analyze(ctx, req)
	return resp, code, nil
}

// ProcessMessage 展开信封并逐个分析，每个请求的结果互不影响
func (s *TaskService) ProcessMessage(ctx context.Context, data []byte) *MessageResponse {
	requests, err := ParseMessage(data, s.log)
	if err != nil {
		s.log.Warn().Err(err).Msg("Rejecting task message")
		return NewMessageResponse(models.CodeInvalidMessage, nil)
	}

	results := make([]*analyzer.Response, 0, len(requests))
	for _, req := range requests {
		resp, code := s.Analyze(ctx, req)
		if resp == nil {
			if code == models.CodeSuccess {
				code = models.CodeInvalidMessage
			}
			resp = analyzer.FormatDataResponse(code, req.AgentID, req.TaskID, nil)
		}
		results = append(results, resp)
	}

	return NewMessageResponse(models.CodeSuccess, results)
}

// ListTasks 按条件列出任务记录
func (s *TaskService) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*models.Task, error) {
	return s.store.ListTasks(ctx, filter)
}

// GetTask 按 task_id 查询任务记录
func (s *TaskService) GetTask(ctx context.Context, taskID int) (*models.Task, error) {
	return s.store.GetTaskByID(ctx, taskID)
}
