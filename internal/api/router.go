package api

import (
	"task-manager/internal/api/handlers"
	"task-manager/internal/metrics"
	"task-manager/pkg/logger"

	"github.com/gin-gonic/gin"
)

func NewRouter(
	taskHandler *handlers.TaskHandler,
	statusHandler *handlers.StatusHandler,
	logger *logger.Logger,
) *gin.Engine {
	log := logger.GetLogger("router")

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware(logger.GetLogger("http")))

	// 健康检查与状态
	router.GET("/healthz", statusHandler.Health)
	router.GET("/status", statusHandler.GetSystemStatus)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/:id", taskHandler.GetTask)
			tasks.POST("/analyze", taskHandler.Analyze)
			tasks.POST("/message", taskHandler.Message)
		}
	}

	log.Debug().Msg("Router initialized")
	return router
}
