// Package storetest 提供所有 types.Store 实现共用的行为测试
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/models"
	"task-manager/internal/store/types"
)

// ClockStore 允许测试替换时间来源的存储
type ClockStore interface {
	types.Store
	SetClock(now func() time.Time)
}

// Run 针对 newStore 创建的实例运行完整的存储行为测试
func Run(t *testing.T, newStore func(t *testing.T) ClockStore) {
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	setup := func(t *testing.T) (ClockStore, *time.Time) {
		store := newStore(t)
		t.Cleanup(func() { store.Close() })
		now := base
		store.SetClock(func() time.Time { return now })
		return store, &now
	}

	t.Run("Insert And Read", func(t *testing.T) {
		store, _ := setup(t)

		id, err := store.InsertTask(ctx, 42, "master", models.ModuleUpgrade, models.CommandUpgrade)
		require.NoError(t, err)
		assert.Positive(t, id)

		task, err := store.GetTaskByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 42, task.AgentID)
		assert.Equal(t, "master", task.Node)
		assert.Equal(t, models.ModuleUpgrade, task.Module)
		assert.Equal(t, models.CommandUpgrade, task.Command)
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.Equal(t, base.Unix(), task.CreateTime)
		assert.Nil(t, task.ErrorMsg)

		status, err := store.GetUpgradeStatus(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "pending", status)

		_, err = store.GetTaskByID(ctx, id+100)
		assert.ErrorIs(t, err, types.ErrTaskNotFound)
	})

	t.Run("No Upgrade Task", func(t *testing.T) {
		store, _ := setup(t)

		status, err := store.GetUpgradeStatus(ctx, 7)
		require.NoError(t, err)
		assert.Empty(t, status)

		_, err = store.GetLatestUpgradeByAgent(ctx, 7)
		assert.ErrorIs(t, err, types.ErrTaskNotFound)

		err = store.UpdateUpgradeStatus(ctx, 7, "done", nil)
		assertCode(t, err, models.CodeDatabaseNoTask)
	})

	t.Run("Single Upgrade In Flight", func(t *testing.T) {
		store, now := setup(t)

		_, err := store.InsertTask(ctx, 1, "n", models.ModuleUpgrade, models.CommandUpgrade)
		require.NoError(t, err)

		_, err = store.InsertTask(ctx, 1, "n", models.ModuleUpgrade, models.CommandUpgradeCustom)
		assertCode(t, err, models.CodeUpgradeInProgress)

		// 其他 agent 不受影响
		_, err = store.InsertTask(ctx, 2, "n", models.ModuleUpgrade, models.CommandUpgrade)
		require.NoError(t, err)

		*now = now.Add(time.Second)
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 1, "done", nil))

		*now = now.Add(time.Second)
		second, err := store.InsertTask(ctx, 1, "n", models.ModuleUpgrade, models.CommandUpgradeCustom)
		require.NoError(t, err)

		latest, err := store.GetLatestUpgradeByAgent(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, second, latest.ID)
		assert.Equal(t, models.TaskStatusPending, latest.Status)
	})

	t.Run("Update Status", func(t *testing.T) {
		store, now := setup(t)

		_, err := store.InsertTask(ctx, 5, "n", models.ModuleUpgrade, models.CommandUpgrade)
		require.NoError(t, err)

		err = store.UpdateUpgradeStatus(ctx, 5, "rebooting", nil)
		assertCode(t, err, models.CodeInvalidStatus)
		err = store.UpdateUpgradeStatus(ctx, 5, "", nil)
		assertCode(t, err, models.CodeInvalidStatus)

		*now = now.Add(time.Minute)
		msg := "package verification failed"
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 5, "in_progress", &msg))

		task, err := store.GetLatestUpgradeByAgent(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusInProgress, task.Status)
		assert.Equal(t, now.Unix(), task.LastUpdateTime)
		require.NotNil(t, task.ErrorMsg)
		assert.Equal(t, msg, *task.ErrorMsg)

		// 未提供 error_msg 时清空
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 5, "done", nil))
		task, err = store.GetLatestUpgradeByAgent(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusDone, task.Status)
		assert.Nil(t, task.ErrorMsg)

		err = store.UpdateUpgradeStatus(ctx, 5, "failed", nil)
		assertCode(t, err, models.CodeDatabaseNoTask)
	})

	t.Run("Legacy Is Final", func(t *testing.T) {
		store, _ := setup(t)

		_, err := store.InsertTask(ctx, 9, "n", models.ModuleUpgrade, models.CommandUpgrade)
		require.NoError(t, err)
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 9, "legacy", nil))

		err = store.UpdateUpgradeStatus(ctx, 9, "done", nil)
		assertCode(t, err, models.CodeDatabaseNoTask)

		_, err = store.InsertTask(ctx, 9, "n", models.ModuleUpgrade, models.CommandUpgrade)
		assert.NoError(t, err)
	})

	t.Run("List And Count", func(t *testing.T) {
		store, _ := setup(t)

		for agent := 1; agent <= 3; agent++ {
			_, err := store.InsertTask(ctx, agent, "n", models.ModuleUpgrade, models.CommandUpgrade)
			require.NoError(t, err)
		}
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 2, "failed", nil))

		tasks, err := store.ListTasks(ctx, types.TaskFilter{})
		require.NoError(t, err)
		require.Len(t, tasks, 3)
		assert.Less(t, tasks[0].ID, tasks[1].ID)
		assert.Less(t, tasks[1].ID, tasks[2].ID)

		agent := 2
		tasks, err = store.ListTasks(ctx, types.TaskFilter{AgentID: &agent})
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, models.TaskStatusFailed, tasks[0].Status)

		pending := models.TaskStatusPending
		tasks, err = store.ListTasks(ctx, types.TaskFilter{Status: &pending, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, tasks, 1)

		counts, err := store.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, counts[models.TaskStatusPending])
		assert.Equal(t, 1, counts[models.TaskStatusFailed])
		assert.Zero(t, counts[models.TaskStatusDone])
	})

	t.Run("Timeout Tasks", func(t *testing.T) {
		store, now := setup(t)
		timeout := 10 * time.Minute

		for agent := 1; agent <= 3; agent++ {
			_, err := store.InsertTask(ctx, agent, "n", models.ModuleUpgrade, models.CommandUpgrade)
			require.NoError(t, err)
		}
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 1, "in_progress", nil))
		*now = now.Add(5 * time.Minute)
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 2, "in_progress", nil))

		next, err := store.TimeoutTasks(ctx, base.Add(timeout), timeout)
		require.NoError(t, err)
		assert.Equal(t, base.Add(5*time.Minute+timeout).Unix(), next.Unix())

		status, err := store.GetUpgradeStatus(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "timeout", status)

		status, err = store.GetUpgradeStatus(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "in_progress", status)

		// 从未更新的 pending 任务按创建时间计时
		status, err = store.GetUpgradeStatus(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "timeout", status)

		next, err = store.TimeoutTasks(ctx, base.Add(time.Hour), timeout)
		require.NoError(t, err)
		assert.True(t, next.IsZero())
	})

	t.Run("Stale Pending Task Releases Agent", func(t *testing.T) {
		store, now := setup(t)
		timeout := 15 * time.Minute

		_, err := store.InsertTask(ctx, 5, "n", models.ModuleUpgrade, models.CommandUpgrade)
		require.NoError(t, err)

		*now = base.Add(6 * 24 * time.Hour)
		_, err = store.TimeoutTasks(ctx, *now, timeout)
		require.NoError(t, err)

		status, err := store.GetUpgradeStatus(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "timeout", status)

		_, err = store.InsertTask(ctx, 5, "n", models.ModuleUpgrade, models.CommandUpgrade)
		assert.NoError(t, err)
	})

	t.Run("Updating Task Times Out", func(t *testing.T) {
		store, now := setup(t)
		timeout := 15 * time.Minute

		_, err := store.InsertTask(ctx, 6, "n", models.ModuleUpgrade, models.CommandUpgrade)
		require.NoError(t, err)
		*now = base.Add(time.Hour)
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 6, "updating", nil))

		// 以最近一次更新计时，而不是创建时间
		next, err := store.TimeoutTasks(ctx, base.Add(time.Hour+10*time.Minute), timeout)
		require.NoError(t, err)
		assert.Equal(t, base.Add(time.Hour+timeout).Unix(), next.Unix())

		_, err = store.TimeoutTasks(ctx, base.Add(time.Hour+timeout), timeout)
		require.NoError(t, err)
		status, err := store.GetUpgradeStatus(ctx, 6)
		require.NoError(t, err)
		assert.Equal(t, "timeout", status)
	})

	t.Run("Cancel In Flight Tasks", func(t *testing.T) {
		store, now := setup(t)

		for agent := 1; agent <= 4; agent++ {
			_, err := store.InsertTask(ctx, agent, "n", models.ModuleUpgrade, models.CommandUpgrade)
			require.NoError(t, err)
		}
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 2, "in_progress", nil))
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 3, "updating", nil))
		require.NoError(t, store.UpdateUpgradeStatus(ctx, 4, "done", nil))

		*now = base.Add(time.Minute)
		cancelled, err := store.CancelInFlightTasks(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), cancelled)

		for agent, want := range map[int]string{1: "cancelled", 2: "cancelled", 3: "cancelled", 4: "done"} {
			status, err := store.GetUpgradeStatus(ctx, agent)
			require.NoError(t, err)
			assert.Equal(t, want, status, "agent %d", agent)
		}

		task, err := store.GetLatestUpgradeByAgent(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, base.Add(time.Minute).Unix(), task.LastUpdateTime)
		assert.Equal(t, "Task cancelled since the manager was restarted", task.Status.UpgradeDescription())

		// 取消后可以重新创建升级任务
		_, err = store.InsertTask(ctx, 1, "n", models.ModuleUpgrade, models.CommandUpgrade)
		assert.NoError(t, err)
	})

	t.Run("Concurrent Upgrade Inserts", func(t *testing.T) {
		store, _ := setup(t)

		const workers = 8
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = store.InsertTask(ctx, 77, "n", models.ModuleUpgrade, models.CommandUpgrade)
			}()
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			assertCode(t, err, models.CodeUpgradeInProgress)
		}
		assert.Equal(t, 1, created)

		tasks, err := store.ListTasks(ctx, types.TaskFilter{AgentID: intPtr(77)})
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
	})

	t.Run("Delete Old Tasks", func(t *testing.T) {
		store, now := setup(t)

		old, err := store.InsertTask(ctx, 1, "n", models.ModuleUpgrade, models.CommandUpgrade)
		require.NoError(t, err)
		*now = now.Add(48 * time.Hour)
		recent, err := store.InsertTask(ctx, 2, "n", models.ModuleUpgrade, models.CommandUpgrade)
		require.NoError(t, err)

		deleted, err := store.DeleteTasksBefore(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = store.GetTaskByID(ctx, old)
		assert.ErrorIs(t, err, types.ErrTaskNotFound)
		_, err = store.GetTaskByID(ctx, recent)
		assert.NoError(t, err)
	})
}

func intPtr(v int) *int { return &v }

func assertCode(t *testing.T, err error, code models.Code) {
	t.Helper()
	var codeErr *types.CodeError
	if assert.ErrorAs(t, err, &codeErr) {
		assert.Equal(t, code, codeErr.Code)
	}
}
