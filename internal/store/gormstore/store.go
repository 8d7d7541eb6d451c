package gormstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"task-manager/internal/models"
	"task-manager/internal/store/types"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var upgradeCommands = []string{models.CommandUpgrade, models.CommandUpgradeCustom}

var inFlightStatuses = func() []string {
	statuses := make([]string, 0, len(models.InFlightStatuses))
	for _, status := range models.InFlightStatuses {
		statuses = append(statuses, string(status))
	}
	return statuses
}()

// upgradeLockClass pg_advisory_xact_lock 的第一个键，第二个键为 agent ID
const upgradeLockClass = 0x7461736b

// Store 通用GORM存储实现，SQLite 与 PostgreSQL 共用
type Store struct {
	db  *gorm.DB
	now func() time.Time
	// writeMu 串行化非 PostgreSQL 后端的升级任务写入
	writeMu sync.Mutex
}

// New 打开数据库并迁移任务表
func New(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&models.Task{}); err != nil {
		return nil, fmt.Errorf("auto migrating tables: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// SetClock 替换时间来源，测试使用
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func latestUpgrade(tx *gorm.DB, agentID int) (*models.Task, error) {
	var task models.Task
	err := tx.Where("agent_id = ? AND command IN ?", agentID, upgradeCommands).
		Order("create_time DESC").
		Order("task_id DESC").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest upgrade task: %w", err)
	}
	return &task, nil
}

func (s *Store) isPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

// withAgentLock 在事务中执行 fn，同一 agent 的升级任务读写互斥。
// PostgreSQL 使用事务级 advisory lock；SQLite 只有本进程写入，用互斥锁即可。
func (s *Store) withAgentLock(ctx context.Context, agentID int, fn func(tx *gorm.DB) error) error {
	if !s.isPostgres() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.isPostgres() {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", upgradeLockClass, agentID).Error; err != nil {
				return fmt.Errorf("locking agent %d: %w", agentID, err)
			}
		}
		return fn(tx)
	})
}

func (s *Store) InsertTask(ctx context.Context, agentID int, node, module, command string) (int, error) {
	task := &models.Task{
		AgentID:    agentID,
		Node:       node,
		Module:     module,
		Command:    command,
		Status:     models.TaskStatusPending,
		CreateTime: s.now().Unix(),
	}

	insert := func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("inserting task: %w", err)
		}
		return nil
	}

	var err error
	if models.IsUpgradeCommand(command) {
		err = s.withAgentLock(ctx, agentID, func(tx *gorm.DB) error {
			active, err := latestUpgrade(tx, agentID)
			switch {
			case err == nil && active.Status.IsInFlight():
				return types.SoftError(models.CodeUpgradeInProgress)
			case err != nil && !errors.Is(err, types.ErrTaskNotFound):
				return err
			}
			return insert(tx)
		})
	} else {
		err = s.db.WithContext(ctx).Transaction(insert)
	}
	if err != nil {
		return 0, err
	}
	return task.ID, nil
}

func (s *Store) GetUpgradeStatus(ctx context.Context, agentID int) (string, error) {
	task, err := latestUpgrade(s.db.WithContext(ctx), agentID)
	if errors.Is(err, types.ErrTaskNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(task.Status), nil
}

func (s *Store) UpdateUpgradeStatus(ctx context.Context, agentID int, status string, errorMsg *string) error {
	if !models.IsValidUpdate(status) {
		return types.SoftError(models.CodeInvalidStatus)
	}

	return s.withAgentLock(ctx, agentID, func(tx *gorm.DB) error {
		task, err := latestUpgrade(tx, agentID)
		if errors.Is(err, types.ErrTaskNotFound) {
			return types.SoftError(models.CodeDatabaseNoTask)
		}
		if err != nil {
			return err
		}
		if !task.Status.IsUpdatable() {
			return types.SoftError(models.CodeDatabaseNoTask)
		}

		var msg any
		if errorMsg != nil {
			msg = *errorMsg
		}
		result := tx.Model(&models.Task{}).Where("task_id = ?", task.ID).Updates(map[string]any{
			"status":           status,
			"last_update_time": s.now().Unix(),
			"error_message":    msg,
		})
		if result.Error != nil {
			return fmt.Errorf("updating task status: %w", result.Error)
		}
		return nil
	})
}

func (s *Store) GetLatestUpgradeByAgent(ctx context.Context, agentID int) (*models.Task, error) {
	return latestUpgrade(s.db.WithContext(ctx), agentID)
}

func (s *Store) GetTaskByID(ctx context.Context, taskID int) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).First(&task, "task_id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return &task, nil
}

func (s *Store) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*models.Task, error) {
	query := s.db.WithContext(ctx).Model(&models.Task{})
	if filter.AgentID != nil {
		query = query.Where("agent_id = ?", *filter.AgentID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var tasks []*models.Task
	if err := query.Order("task_id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error) {
	var rows []struct {
		Status models.TaskStatus
		Count  int
	}
	err := s.db.WithContext(ctx).Model(&models.Task{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting tasks: %w", err)
	}

	counts := make(map[models.TaskStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (s *Store) TimeoutTasks(ctx context.Context, now time.Time, timeout time.Duration) (time.Time, error) {
	var next time.Time

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tasks []models.Task
		if err := tx.Where("status IN ?", inFlightStatuses).Find(&tasks).Error; err != nil {
			return fmt.Errorf("querying in flight tasks: %w", err)
		}

		for _, task := range tasks {
			deadline := time.Unix(task.ActivitySince(), 0).Add(timeout)
			if now.Before(deadline) {
				if next.IsZero() || deadline.Before(next) {
					next = deadline
				}
				continue
			}

			result := tx.Model(&models.Task{}).Where("task_id = ?", task.ID).Updates(map[string]any{
				"status":           string(models.TaskStatusTimeout),
				"last_update_time": now.Unix(),
			})
			if result.Error != nil {
				return fmt.Errorf("setting task %d timeout: %w", task.ID, result.Error)
			}
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return next, nil
}

func (s *Store) CancelInFlightTasks(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("status IN ?", inFlightStatuses).
		Updates(map[string]any{
			"status":           string(models.TaskStatusCancelled),
			"last_update_time": s.now().Unix(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cancelling tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("create_time <= ?", cutoff.Unix()).Delete(&models.Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting sql db: %w", err)
	}
	return sqlDB.Close()
}
