package handlers

import (
	"net/http"
	"time"

	"task-manager/internal/service"
	"task-manager/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type StatusHandler struct {
	statusService *service.StatusService
	log           zerolog.Logger
}

func NewStatusHandler(
	statusService *service.StatusService,
	logger *logger.Logger,
) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
		log:           logger.GetLogger("status-handler"),
	}
}

func (h *StatusHandler) GetSystemStatus(c *gin.Context) {
	status, err := h.statusService.GetSystemStatus(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get system status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get system status"})
		return
	}

	h.log.Debug().
		Int("total_tasks", status.TotalTasks).
		Msg("System status retrieved successfully")

	c.JSON(http.StatusOK, status)
}

// Health 通过一次存储查询判断服务是否可用
func (h *StatusHandler) Health(c *gin.Context) {
	httpStatus := http.StatusOK
	checks := gin.H{"store": "healthy"}

	if err := h.statusService.CheckStore(c.Request.Context()); err != nil {
		h.log.Warn().Err(err).Msg("Health check failed")
		httpStatus = http.StatusServiceUnavailable
		checks["store"] = "unhealthy: " + err.Error()
	}

	status := "healthy"
	if httpStatus != http.StatusOK {
		status = "unhealthy"
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
