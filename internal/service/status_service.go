package service

import (
	"context"
	"fmt"
	"time"

	"task-manager/internal/metrics"
	"task-manager/internal/models"
	"task-manager/internal/store/types"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type StatusService struct {
	store     types.Store
	log       zerolog.Logger
	startTime time.Time
	// collectHost 可在测试中替换
	collectHost func(ctx context.Context) models.HostStatus
}

func NewStatusService(store types.Store, log zerolog.Logger) *StatusService {
	s := &StatusService{
		store:     store,
		log:       log,
		startTime: time.Now(),
	}
	s.collectHost = s.hostStatus
	return s
}

func (s *StatusService) GetSystemStatus(ctx context.Context) (*models.SystemStatus, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting tasks: %w", err)
	}

	metrics.UpdateTasksByStatus(counts)

	total := 0
	for _, n := range counts {
		total += n
	}

	return &models.SystemStatus{
		TotalTasks: total,
		Tasks:      counts,
		StartTime:  s.startTime,
		Uptime:     int64(time.Since(s.startTime).Seconds()),
		Host:       s.collectHost(ctx),
	}, nil
}

// CheckStore 确认存储可以响应查询
func (s *StatusService) CheckStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.store.CountByStatus(ctx)
	return err
}

// hostStatus 收集系统指标，单项失败只记录日志
func (s *StatusService) hostStatus(ctx context.Context) models.HostStatus {
	var status models.HostStatus

	if info, err := host.InfoWithContext(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Getting host info failed")
	} else {
		status.Hostname = info.Hostname
		status.Platform = info.Platform
		status.Uptime = info.Uptime
	}

	// 间隔为 0 时与上次调用比较，不阻塞
	if percent, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.log.Warn().Err(err).Msg("Getting CPU usage failed")
	} else if len(percent) > 0 {
		status.CPUUsage = percent[0]
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Getting memory info failed")
	} else {
		status.MemoryUsage = memInfo.UsedPercent
	}

	if diskInfo, err := disk.UsageWithContext(ctx, "/"); err != nil {
		s.log.Warn().Err(err).Msg("Getting disk info failed")
	} else {
		status.DiskUsage = diskInfo.UsedPercent
	}

	return status
}
