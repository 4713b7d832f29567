package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/crm-console/internal/audit"
)

type fakeClient struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func (f *fakeClient) Close() error { return nil }

func newTestManager(t *testing.T) (*Manager, *audit.MemoryRepository, *fakeClient) {
	t.Helper()
	repo := audit.NewMemoryRepository(10)
	m, err := NewManager("redis://127.0.0.1:6379/0", repo, nil)
	require.NoError(t, err)
	fc := &fakeClient{}
	m.client = fc
	return m, repo, fc
}

func TestNewManagerValidatesInput(t *testing.T) {
	_, err := NewManager("redis://127.0.0.1:6379/0", nil, nil)
	assert.Error(t, err)

	_, err = NewManager("://bad", audit.NewMemoryRepository(1), nil)
	assert.Error(t, err)
}

func TestRecordEnqueuesTask(t *testing.T) {
	m, repo, fc := newTestManager(t)

	m.Record(context.Background(), audit.Event{Type: audit.EventLoginSuccess, Email: "a@example.com"})

	require.Len(t, fc.tasks, 1)
	assert.Equal(t, TaskTypeAuditRecord, fc.tasks[0].Type())

	var ev audit.Event
	require.NoError(t, json.Unmarshal(fc.tasks[0].Payload(), &ev))
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.RecordedAt.IsZero())

	events, _ := repo.ListRecent(context.Background(), 10)
	assert.Empty(t, events, "nothing is written until the worker runs")
}

func TestRecordFallsBackWhenQueueUnavailable(t *testing.T) {
	m, repo, fc := newTestManager(t)
	fc.err = errors.New("redis down")

	m.Record(context.Background(), audit.Event{Type: audit.EventLogout})

	events, _ := repo.ListRecent(context.Background(), 10)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventLogout, events[0].Type)
}

func TestHandleAuditTask(t *testing.T) {
	m, repo, _ := newTestManager(t)

	body, _ := json.Marshal(audit.Event{ID: "e-1", Type: audit.EventRegister, Email: "new@example.com"})
	require.NoError(t, m.handleAuditTask(context.Background(), asynq.NewTask(TaskTypeAuditRecord, body)))

	events, _ := repo.ListRecent(context.Background(), 10)
	require.Len(t, events, 1)
	assert.Equal(t, "e-1", events[0].ID)

	err := m.handleAuditTask(context.Background(), asynq.NewTask(TaskTypeAuditRecord, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = m.handleAuditTask(context.Background(), asynq.NewTask(TaskTypeAuditRecord, []byte(`{"id":""}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
