package service

import (
	"context"
	"fmt"
	"time"

	"task-manager/internal/metrics"
	"task-manager/internal/store/types"
	"task-manager/pkg/config"

	"github.com/rs/zerolog"
)

// CleanupService 定期将无响应的任务置为超时，并删除过期记录
type CleanupService struct {
	store types.Store
	cfg   config.TaskManagerConfig
	log   zerolog.Logger
	now   func() time.Time
}

func NewCleanupService(store types.Store, cfg config.TaskManagerConfig, log zerolog.Logger) *CleanupService {
	return &CleanupService{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// RunOnce 执行一轮维护，返回下次应唤醒的时间
func (s *CleanupService) RunOnce(ctx context.Context) (time.Time, error) {
	now := s.now()
	wake := now.Add(s.cfg.CleanupInterval)

	next, err := s.store.TimeoutTasks(ctx, now, s.cfg.TaskTimeout)
	if err != nil {
		return wake, fmt.Errorf("timing out tasks: %w", err)
	}
	if !next.IsZero() && next.Before(wake) {
		wake = next
	}

	deleted, err := s.store.DeleteTasksBefore(ctx, now.Add(-s.cfg.CleanupTime))
	if err != nil {
		return wake, fmt.Errorf("deleting old tasks: %w", err)
	}
	if deleted > 0 {
		metrics.RecordPurged(deleted)
		s.log.Info().Int64("deleted", deleted).Msg("Old tasks purged")
	}

	return wake, nil
}

// CancelStranded 取消上次运行遗留的在途任务，这些任务的 agent 已无法再上报
func (s *CleanupService) CancelStranded(ctx context.Context) error {
	cancelled, err := s.store.CancelInFlightTasks(ctx)
	if err != nil {
		return fmt.Errorf("cancelling in flight tasks: %w", err)
	}
	if cancelled > 0 {
		s.log.Warn().Int64("cancelled", cancelled).Msg("In flight tasks cancelled after restart")
	}
	return nil
}

// Run 阻塞运行直到 ctx 被取消
func (s *CleanupService) Run(ctx context.Context) {
	s.log.Info().
		Dur("task_timeout", s.cfg.TaskTimeout).
		Dur("cleanup_time", s.cfg.CleanupTime).
		Msg("Cleanup worker started")

	for {
		wake, err := s.RunOnce(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("Task cleanup failed")
		}

		timer := time.NewTimer(wake.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("Cleanup worker stopped")
			return
		case <-timer.C:
		}
	}
}
