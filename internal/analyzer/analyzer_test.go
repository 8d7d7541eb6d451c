package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/models"
	"task-manager/internal/store/memory"
	"task-manager/internal/store/types"
)

// fakeStore 可编程的存储桩，记录调用次数
type fakeStore struct {
	calls int

	insert       func(agentID int, node, module, command string) (int, error)
	getStatus    func(agentID int) (string, error)
	updateStatus func(agentID int, status string, errorMsg *string) error
	latest       func(agentID int) (*models.Task, error)
	byID         func(taskID int) (*models.Task, error)
}

func (f *fakeStore) InsertTask(ctx context.Context, agentID int, node, module, command string) (int, error) {
	f.calls++
	return f.insert(agentID, node, module, command)
}

func (f *fakeStore) GetUpgradeStatus(ctx context.Context, agentID int) (string, error) {
	f.calls++
	return f.getStatus(agentID)
}

func (f *fakeStore) UpdateUpgradeStatus(ctx context.Context, agentID int, status string, errorMsg *string) error {
	f.calls++
	return f.updateStatus(agentID, status, errorMsg)
}

func (f *fakeStore) GetLatestUpgradeByAgent(ctx context.Context, agentID int) (*models.Task, error) {
	f.calls++
	return f.latest(agentID)
}

func (f *fakeStore) GetTaskByID(ctx context.Context, taskID int) (*models.Task, error) {
	f.calls++
	return f.byID(taskID)
}

func (f *fakeStore) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*models.Task, error) {
	return nil, nil
}

func (f *fakeStore) CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error) {
	return nil, nil
}

func (f *fakeStore) TimeoutTasks(ctx context.Context, now time.Time, timeout time.Duration) (time.Time, error) {
	return time.Time{}, nil
}

func (f *fakeStore) CancelInFlightTasks(ctx context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeStore) DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Close() error { return nil }

var errDisk = errors.New("disk I/O error")

func request(t *testing.T, raw string) *models.Request {
	t.Helper()
	req, err := ParseRequest([]byte(raw))
	require.NoError(t, err)
	return req
}

func encode(t *testing.T, resp *Response) string {
	t.Helper()
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(data)
}

func newAnalyzer(store types.Store) *Analyzer {
	return New(store, zerolog.Nop())
}

func TestAnalyzeScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("upgrade creates task", func(t *testing.T) {
		store := &fakeStore{insert: func(agentID int, node, module, command string) (int, error) {
			assert.Equal(t, 42, agentID)
			assert.Equal(t, "worker-1", node)
			assert.Equal(t, models.ModuleUpgrade, module)
			assert.Equal(t, models.CommandUpgrade, command)
			return 7, nil
		}}

		resp, code := newAnalyzer(store).Analyze(ctx, request(t,
			`{"module":"upgrade_module","command":"upgrade","node":"worker-1","agent":42}`))

		require.NotNil(t, resp)
		assert.Equal(t, models.CodeSuccess, code)
		assert.JSONEq(t, `{"error":0,"data":"Success","agent":42,"task_id":7}`, encode(t, resp))
	})

	t.Run("get status returns store status", func(t *testing.T) {
		store := &fakeStore{getStatus: func(agentID int) (string, error) {
			return "in progress", nil
		}}

		resp, code := newAnalyzer(store).Analyze(ctx, request(t,
			`{"module":"upgrade_module","command":"upgrade_get_status","node":"worker-1","agent":42}`))

		require.NotNil(t, resp)
		assert.Equal(t, models.CodeSuccess, code)
		assert.JSONEq(t, `{"error":0,"data":"Success","agent":42,"task_id":-1,"status":"in progress"}`, encode(t, resp))
	})

	t.Run("get status database error", func(t *testing.T) {
		store := &fakeStore{getStatus: func(agentID int) (string, error) {
			return "", errDisk
		}}

		resp, code := newAnalyzer(store).Analyze(ctx, request(t,
			`{"module":"upgrade_module","command":"upgrade_get_status","node":"worker-1","agent":42}`))

		assert.Nil(t, resp)
		assert.Equal(t, models.CodeDatabaseError, code)
	})

	t.Run("upgrade result without task", func(t *testing.T) {
		store := &fakeStore{latest: func(agentID int) (*models.Task, error) {
			return nil, types.ErrTaskNotFound
		}}

		resp, code := newAnalyzer(store).Analyze(ctx, request(t,
			`{"module":"api_module","command":"upgrade_result","node":"master","agent":99}`))

		require.NotNil(t, resp)
		assert.Equal(t, models.CodeDatabaseNoTask, code)
		assert.JSONEq(t, `{"error":7,"data":"No task found for this agent/id","agent":99,"task_id":-1}`, encode(t, resp))
	})

	t.Run("task result", func(t *testing.T) {
		store := &fakeStore{byID: func(taskID int) (*models.Task, error) {
			assert.Equal(t, 7, taskID)
			return &models.Task{
				ID:             7,
				AgentID:        42,
				Module:         models.ModuleUpgrade,
				Command:        models.CommandUpgrade,
				Status:         models.TaskStatusDone,
				CreateTime:     1000,
				LastUpdateTime: 1500,
			}, nil
		}}

		resp, code := newAnalyzer(store).Analyze(ctx, request(t,
			`{"module":"api_module","command":"task_result","node":"master","task_id":7}`))

		require.NotNil(t, resp)
		assert.Equal(t, models.CodeSuccess, code)
		assert.JSONEq(t, `{"error":0,"data":"Success","agent":42,"task_id":7,"status":"done",
			"module":"upgrade_module","command":"upgrade","create_time":1000,"update_time":1500}`, encode(t, resp))
	})

	t.Run("unknown module", func(t *testing.T) {
		store := &fakeStore{}

		resp, code := newAnalyzer(store).Analyze(ctx, request(t,
			`{"module":"foo","command":"bar","node":"n","agent":1}`))

		require.NotNil(t, resp)
		assert.Equal(t, models.CodeInvalidModule, code)
		assert.JSONEq(t, `{"error":2,"data":"Invalid module","agent":1,"task_id":-1}`, encode(t, resp))
		assert.Zero(t, store.calls)
	})
}

func TestAnalyzeSilentReject(t *testing.T) {
	cases := map[string]string{
		"missing node":     `{"module":"upgrade_module","command":"upgrade","agent":1}`,
		"missing module":   `{"node":"n","command":"upgrade","agent":1}`,
		"missing command":  `{"node":"n","module":"upgrade_module","agent":1}`,
		"numeric node":     `{"node":5,"module":"upgrade_module","command":"upgrade","agent":1}`,
		"null module":      `{"node":"n","module":null,"command":"upgrade","agent":1}`,
		"array command":    `{"node":"n","module":"api_module","command":["task_result"],"task_id":1}`,
		"everything unset": `{}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{}
			resp, code := newAnalyzer(store).Analyze(context.Background(), request(t, raw))

			assert.Nil(t, resp)
			assert.Equal(t, models.CodeSuccess, code)
			assert.Zero(t, store.calls)
		})
	}

	t.Run("nil request", func(t *testing.T) {
		resp, code := newAnalyzer(&fakeStore{}).Analyze(context.Background(), nil)
		assert.Nil(t, resp)
		assert.Equal(t, models.CodeSuccess, code)
	})
}

func TestAnalyzeInvalidCommand(t *testing.T) {
	for _, module := range []string{models.ModuleUpgrade, models.ModuleAPI} {
		t.Run(module, func(t *testing.T) {
			store := &fakeStore{}
			req := request(t, `{"node":"n","module":"`+module+`","command":"reboot","agent":3,"task_id":9}`)

			resp, code := newAnalyzer(store).Analyze(context.Background(), req)

			require.NotNil(t, resp)
			assert.Equal(t, models.CodeInvalidCommand, code)
			assert.Equal(t, models.CodeInvalidCommand, resp.Error)
			assert.Equal(t, "Invalid command", resp.Data)
			assert.Equal(t, 3, resp.Agent)
			assert.Equal(t, 9, resp.TaskID)
			assert.Zero(t, store.calls)
		})
	}
}

func TestAnalyzeIdentifierGating(t *testing.T) {
	upgradeCommands := []string{
		models.CommandUpgrade,
		models.CommandUpgradeCustom,
		models.CommandUpgradeGetStatus,
		models.CommandUpgradeUpdateStatus,
	}
	for _, command := range upgradeCommands {
		t.Run(command, func(t *testing.T) {
			store := &fakeStore{}
			req := request(t, `{"node":"n","module":"upgrade_module","command":"`+command+`","agent":"12","status":"done"}`)

			resp, code := newAnalyzer(store).Analyze(context.Background(), req)

			require.NotNil(t, resp)
			assert.Equal(t, models.CodeInvalidAgentID, code)
			assert.JSONEq(t, `{"error":4,"data":"Invalid agent ID","agent":-1,"task_id":-1,"status":"done"}`, encode(t, resp))
			assert.Zero(t, store.calls)
		})
	}

	t.Run("upgrade_result", func(t *testing.T) {
		store := &fakeStore{}
		resp, code := newAnalyzer(store).Analyze(context.Background(),
			request(t, `{"node":"n","module":"api_module","command":"upgrade_result","task_id":4}`))

		require.NotNil(t, resp)
		assert.Equal(t, models.CodeInvalidAgentID, code)
		assert.Equal(t, 4, resp.TaskID)
		assert.Zero(t, store.calls)
	})

	for _, command := range append(upgradeCommands, models.CommandUpgradeResult) {
		t.Run(command+" agent 0", func(t *testing.T) {
			module := models.ModuleUpgrade
			if command == models.CommandUpgradeResult {
				module = models.ModuleAPI
			}
			store := &fakeStore{}
			req := request(t, `{"node":"n","module":"`+module+`","command":"`+command+`","agent":0,"status":"done"}`)

			resp, code := newAnalyzer(store).Analyze(context.Background(), req)

			require.NotNil(t, resp)
			assert.Equal(t, models.CodeInvalidAgentID, code)
			assert.Equal(t, 0, resp.Agent)
			assert.Zero(t, store.calls)
		})
	}

	t.Run("task_result", func(t *testing.T) {
		store := &fakeStore{}
		resp, code := newAnalyzer(store).Analyze(context.Background(),
			request(t, `{"node":"n","module":"api_module","command":"task_result","agent":4}`))

		require.NotNil(t, resp)
		assert.Equal(t, models.CodeInvalidTaskID, code)
		assert.JSONEq(t, `{"error":5,"data":"Invalid task ID","agent":4,"task_id":-1}`, encode(t, resp))
		assert.Zero(t, store.calls)
	})
}

func TestAnalyzeSoftFailurePropagation(t *testing.T) {
	for _, code := range []models.Code{models.CodeInvalidStatus, models.CodeDatabaseNoTask, models.CodeUpgradeInProgress, 42} {
		soft := types.SoftError(code)
		store := &fakeStore{
			insert:       func(int, string, string, string) (int, error) { return 0, soft },
			getStatus:    func(int) (string, error) { return "", soft },
			updateStatus: func(int, string, *string) error { return soft },
		}

		for _, command := range []string{models.CommandUpgrade, models.CommandUpgradeGetStatus, models.CommandUpgradeUpdateStatus} {
			req := request(t, `{"node":"n","module":"upgrade_module","command":"`+command+`","agent":8,"status":"failed"}`)
			resp, got := newAnalyzer(store).Analyze(context.Background(), req)

			require.NotNil(t, resp, command)
			assert.Equal(t, code, got, command)
			assert.Equal(t, code, resp.Error, command)
			assert.Equal(t, code.Message(), resp.Data, command)
			assert.Equal(t, 8, resp.Agent, command)
			require.NotNil(t, resp.Status, command)
			assert.Equal(t, "failed", *resp.Status, command)
		}
	}
}

func TestAnalyzeHardFailure(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{
		insert:       func(int, string, string, string) (int, error) { return 0, errDisk },
		updateStatus: func(int, string, *string) error { return errDisk },
		latest:       func(int) (*models.Task, error) { return nil, errDisk },
		byID:         func(int) (*models.Task, error) { return nil, errDisk },
	}
	a := newAnalyzer(store)

	t.Run("insert produces no response", func(t *testing.T) {
		resp, code := a.Analyze(ctx, request(t, `{"node":"n","module":"upgrade_module","command":"upgrade_custom","agent":8}`))
		assert.Nil(t, resp)
		assert.Equal(t, models.CodeDatabaseError, code)
	})

	t.Run("update produces no response", func(t *testing.T) {
		resp, code := a.Analyze(ctx, request(t, `{"node":"n","module":"upgrade_module","command":"upgrade_update_status","agent":8,"status":"done"}`))
		assert.Nil(t, resp)
		assert.Equal(t, models.CodeDatabaseError, code)
	})

	t.Run("upgrade result reports database error", func(t *testing.T) {
		resp, code := a.Analyze(ctx, request(t, `{"node":"n","module":"api_module","command":"upgrade_result","agent":8}`))
		require.NotNil(t, resp)
		assert.Equal(t, models.CodeDatabaseError, code)
		assert.JSONEq(t, `{"error":8,"data":"Database error","agent":8,"task_id":-1}`, encode(t, resp))
	})

	t.Run("task result reports database error", func(t *testing.T) {
		resp, code := a.Analyze(ctx, request(t, `{"node":"n","module":"api_module","command":"task_result","task_id":3}`))
		require.NotNil(t, resp)
		assert.Equal(t, models.CodeDatabaseError, code)
		assert.JSONEq(t, `{"error":8,"data":"Database error","agent":-1,"task_id":3}`, encode(t, resp))
	})
}

func TestAnalyzeZeroIdentifierMeansNotFound(t *testing.T) {
	store := &fakeStore{
		latest: func(int) (*models.Task, error) { return &models.Task{ID: 0}, nil },
		byID:   func(int) (*models.Task, error) { return &models.Task{ID: 5, AgentID: 0}, nil },
	}
	a := newAnalyzer(store)

	resp, code := a.Analyze(context.Background(), request(t, `{"node":"n","module":"api_module","command":"upgrade_result","agent":8,"task_id":2}`))
	require.NotNil(t, resp)
	assert.Equal(t, models.CodeDatabaseNoTask, code)
	assert.Equal(t, 8, resp.Agent)
	assert.Equal(t, InvalidID, resp.TaskID)

	resp, code = a.Analyze(context.Background(), request(t, `{"node":"n","module":"api_module","command":"task_result","agent":8,"task_id":5}`))
	require.NotNil(t, resp)
	assert.Equal(t, models.CodeDatabaseNoTask, code)
	assert.Equal(t, InvalidID, resp.Agent)
	assert.Equal(t, 5, resp.TaskID)
}

func TestAnalyzeUpgradeLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Unix(1700000000, 0)
	store.SetClock(func() time.Time { return now })
	a := newAnalyzer(store)

	resp, code := a.Analyze(ctx, request(t, `{"node":"master","module":"upgrade_module","command":"upgrade","agent":42}`))
	require.NotNil(t, resp)
	require.Equal(t, models.CodeSuccess, code)
	taskID := resp.TaskID
	assert.Positive(t, taskID)

	// 已有进行中的升级任务
	resp, code = a.Analyze(ctx, request(t, `{"node":"master","module":"upgrade_module","command":"upgrade_custom","agent":42}`))
	require.NotNil(t, resp)
	assert.Equal(t, models.CodeUpgradeInProgress, code)

	getStatus := request(t, `{"node":"master","module":"upgrade_module","command":"upgrade_get_status","agent":42}`)
	first, code := a.Analyze(ctx, getStatus)
	require.Equal(t, models.CodeSuccess, code)
	second, _ := a.Analyze(ctx, getStatus)
	assert.Equal(t, encode(t, first), encode(t, second))
	assert.Equal(t, "pending", *first.Status)

	now = now.Add(time.Minute)
	resp, code = a.Analyze(ctx, request(t, `{"node":"master","module":"upgrade_module","command":"upgrade_update_status","agent":42,"status":"failed","error_msg":"checksum mismatch"}`))
	require.NotNil(t, resp)
	assert.Equal(t, models.CodeSuccess, code)

	resp, _ = a.Analyze(ctx, getStatus)
	assert.Equal(t, "failed", *resp.Status)

	resp, code = a.Analyze(ctx, request(t, `{"node":"master","module":"api_module","command":"upgrade_result","agent":42}`))
	require.Equal(t, models.CodeSuccess, code)
	assert.JSONEq(t, `{"error":0,"data":"Success","agent":42,"task_id":1,"node":"master","command":"upgrade",
		"status":"Error","error_msg":"checksum mismatch","create_time":1700000000,"update_time":1700000060}`, encode(t, resp))

	// 终态任务不再接受更新
	resp, code = a.Analyze(ctx, request(t, `{"node":"master","module":"upgrade_module","command":"upgrade_update_status","agent":42,"status":"done"}`))
	require.NotNil(t, resp)
	assert.Equal(t, models.CodeDatabaseNoTask, code)

	resp, code = a.Analyze(ctx, request(t, `{"node":"master","module":"upgrade_module","command":"upgrade_update_status","agent":42,"status":"rebooting"}`))
	require.NotNil(t, resp)
	assert.Equal(t, models.CodeInvalidStatus, code)
	assert.Equal(t, "Invalid status", resp.Data)

	resp, code = a.Analyze(ctx, request(t, `{"node":"master","module":"api_module","command":"task_result","task_id":1}`))
	require.Equal(t, models.CodeSuccess, code)
	assert.Equal(t, "failed", *resp.Status)
	assert.Equal(t, models.ModuleUpgrade, *resp.Module)
}
