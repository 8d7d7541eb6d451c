package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"task-manager/internal/analyzer"
	"task-manager/internal/models"
	"task-manager/internal/service"
	"task-manager/internal/store/types"
	"task-manager/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxBodySize 单个请求体上限
const maxBodySize = 1 << 20

type TaskHandler struct {
	taskService *service.TaskService
	log         zerolog.Logger
}

func NewTaskHandler(
	taskService *service.TaskService,
	logger *logger.Logger,
) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		log:         logger.GetLogger("task-handler"),
	}
}

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
}

// Analyze 处理单个任务请求。
// 业务错误码放在响应体中并返回 200；没有生成响应时按错误码返回 400 或 500。
func (h *TaskHandler) Analyze(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read request body")
		c.JSON(http.StatusBadRequest, analyzer.FormatDataResponse(models.CodeInvalidMessage, nil, nil, nil))
		return
	}

	resp, code, err := h.taskService.AnalyzeJSON(c.Request.Context(), body)
	if err != nil {
		h.log.Debug().Err(err).Msg("Rejecting malformed task request")
		c.JSON(http.StatusBadRequest, analyzer.FormatDataResponse(models.CodeInvalidMessage, nil, nil, nil))
		return
	}

	if resp == nil {
		if code == models.CodeSuccess {
			c.JSON(http.StatusBadRequest, analyzer.FormatDataResponse(models.CodeInvalidMessage, nil, nil, nil))
			return
		}
		c.JSON(http.StatusInternalServerError, analyzer.FormatDataResponse(code, nil, nil, nil))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Message 处理批量消息信封
func (h *TaskHandler) Message(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read request body")
		c.JSON(http.StatusBadRequest, service.NewMessageResponse(models.CodeInvalidMessage, nil))
		return
	}

	resp := h.taskService.ProcessMessage(c.Request.Context(), body)
	if resp.Error == models.CodeInvalidMessage {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListTasks 支持 agent、status、limit 查询参数
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var filter types.TaskFilter

	if v := c.Query("agent"); v != "" {
		agentID, err := strconv.Atoi(v)
		if err != nil || agentID < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent"})
			return
		}
		filter.AgentID = &agentID
	}
	if v := c.Query("status"); v != "" {
		if !models.IsKnownStatus(v) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status := models.TaskStatus(v)
		filter.Status = &status
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	tasks, err := h.taskService.ListTasks(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tasks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}

	h.log.Debug().Int("count", len(tasks)).Msg("Tasks retrieved successfully")
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// GetTask 按 task_id 返回任务记录
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil || taskID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), taskID)
	if errors.Is(err, types.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int("task_id", taskID).Msg("Failed to get task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get task"})
		return
	}

	c.JSON(http.StatusOK, task)
}
