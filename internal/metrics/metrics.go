package metrics

import (
	"net/http"
	"strconv"

	"task-manager/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmgr_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskmgr_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 分析结果，按模块与结果码统计
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmgr_analyses_total",
			Help: "Total number of analyzed task requests by module and result code",
		},
		[]string{"module", "code"},
	)

	// 未生成响应的请求（缺少 node/module/command 或写库失败）
	rejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmgr_rejected_requests_total",
			Help: "Total number of task requests that produced no response",
		},
		[]string{"reason"},
	)

	// 清理任务删除的记录数
	tasksPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmgr_tasks_purged_total",
			Help: "Total number of task records removed by the cleanup worker",
		},
	)

	// 任务状态分布
	tasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskmgr_tasks_by_status",
			Help: "Number of stored tasks by status",
		},
		[]string{"status"},
	)
)

// registry 只包含本进程的指标
var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		analysesTotal,
		rejectedTotal,
		tasksPurgedTotal,
		tasksByStatus,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordAPIRequest 记录 HTTP 请求
func RecordAPIRequest(method, path string, status int, seconds float64) {
	if path == "" {
		path = "unmatched"
	}
	apiRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordAnalysis 记录一次分析结果。module 来自请求，未知模块统一记为 other
func RecordAnalysis(module string, code models.Code) {
	switch module {
	case models.ModuleUpgrade, models.ModuleAPI:
	default:
		module = "other"
	}
	analysesTotal.WithLabelValues(module, strconv.Itoa(int(code))).Inc()
}

// RecordRejected 记录未生成响应的请求
func RecordRejected(code models.Code) {
	reason := "invalid_message"
	if code != models.CodeSuccess {
		reason = "database_error"
	}
	rejectedTotal.WithLabelValues(reason).Inc()
}

func RecordPurged(n int64) {
	tasksPurgedTotal.Add(float64(n))
}

// UpdateTasksByStatus 用最新统计覆盖任务状态分布
func UpdateTasksByStatus(counts map[models.TaskStatus]int) {
	tasksByStatus.Reset()
	for status, n := range counts {
		tasksByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
