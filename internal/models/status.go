package models

import "time"

// SystemStatus 任务管理器运行状态
type SystemStatus struct {
	TotalTasks int                `json:"total_tasks"`
	Tasks      map[TaskStatus]int `json:"tasks"`
	StartTime  time.Time          `json:"start_time"`
	Uptime     int64              `json:"uptime"`
	Host       HostStatus         `json:"host"`
}

// HostStatus 主机信息，采集失败的字段保持零值
type HostStatus struct {
	Hostname    string  `json:"hostname"`
	Platform    string  `json:"platform"`
	Uptime      uint64  `json:"uptime"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	DiskUsage   float64 `json:"disk_usage"`
}
