package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"task-manager/internal/models"
	"task-manager/internal/store/types"
)

type Store struct {
	tasks  map[int]*models.Task
	lastID int // 用于生成自增ID
	now    func() time.Time
	mu     sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		tasks: make(map[int]*models.Task),
		now:   time.Now,
	}
}

// SetClock 替换时间来源，测试使用
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// latestUpgrade 返回 agent 最近创建的升级任务，调用方需持有锁
func (s *Store) latestUpgrade(agentID int) *models.Task {
	var latest *models.Task
	for _, task := range s.tasks {
		if task.AgentID != agentID || !models.IsUpgradeCommand(task.Command) {
			continue
		}
		if latest == nil || task.CreateTime > latest.CreateTime ||
			(task.CreateTime == latest.CreateTime && task.ID > latest.ID) {
			latest = task
		}
	}
	return latest
}

func (s *Store) InsertTask(ctx context.Context, agentID int, node, module, command string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if models.IsUpgradeCommand(command) {
		if active := s.latestUpgrade(agentID); active != nil && active.Status.IsInFlight() {
			return 0, types.SoftError(models.CodeUpgradeInProgress)
		}
	}

	s.lastID++
	task := &models.Task{
		ID:         s.lastID,
		AgentID:    agentID,
		Node:       node,
		Module:     module,
		Command:    command,
		Status:     models.TaskStatusPending,
		CreateTime: s.now().Unix(),
	}
	s.tasks[task.ID] = task
	return task.ID, nil
}

func (s *Store) GetUpgradeStatus(ctx context.Context, agentID int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task := s.latestUpgrade(agentID)
	if task == nil {
		return "", nil
	}
	return string(task.Status), nil
}

func (s *Store) UpdateUpgradeStatus(ctx context.Context, agentID int, status string, errorMsg *string) error {
	if !models.IsValidUpdate(status) {
		return types.SoftError(models.CodeInvalidStatus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.latestUpgrade(agentID)
	if task == nil || !task.Status.IsUpdatable() {
		return types.SoftError(models.CodeDatabaseNoTask)
	}

	task.Status = models.TaskStatus(status)
	task.LastUpdateTime = s.now().Unix()
	if errorMsg != nil {
		msg := *errorMsg
		task.ErrorMsg = &msg
	} else {
		task.ErrorMsg = nil
	}
	return nil
}

func (s *Store) GetLatestUpgradeByAgent(ctx context.Context, agentID int) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task := s.latestUpgrade(agentID)
	if task == nil {
		return nil, types.ErrTaskNotFound
	}
	return clone(task), nil
}

func (s *Store) GetTaskByID(ctx context.Context, taskID int) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if task, exists := s.tasks[taskID]; exists {
		return clone(task), nil
	}
	return nil, types.ErrTaskNotFound
}

func (s *Store) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if filter.AgentID != nil && task.AgentID != *filter.AgentID {
			continue
		}
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		tasks = append(tasks, clone(task))
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.TaskStatus]int)
	for _, task := range s.tasks {
		counts[task.Status]++
	}
	return counts, nil
}

func (s *Store) TimeoutTasks(ctx context.Context, now time.Time, timeout time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next time.Time
	for _, task := range s.tasks {
		if !task.Status.IsInFlight() {
			continue
		}
		deadline := time.Unix(task.ActivitySince(), 0).Add(timeout)
		if !now.Before(deadline) {
			task.Status = models.TaskStatusTimeout
			task.LastUpdateTime = now.Unix()
		} else if next.IsZero() || deadline.Before(next) {
			next = deadline
		}
	}
	return next, nil
}

func (s *Store) CancelInFlightTasks(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled int64
	for _, task := range s.tasks {
		if task.Status.IsInFlight() {
			task.Status = models.TaskStatusCancelled
			task.LastUpdateTime = s.now().Unix()
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *Store) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, task := range s.tasks {
		if task.CreateTime <= cutoff.Unix() {
			delete(s.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Close() error {
	return nil
}

func clone(task *models.Task) *models.Task {
	c := *task
	if task.ErrorMsg != nil {
		msg := *task.ErrorMsg
		c.ErrorMsg = &msg
	}
	return &c
}
