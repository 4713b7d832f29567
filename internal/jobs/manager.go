// Package jobs は Asynq を使って監査イベントの書き込みを非同期に処理します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/crm-console/internal/audit"
)

const (
	TaskTypeAuditRecord = "audit:record"
	queueAudit          = "audit"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager は監査イベントのキュー投入とワーカー実行を担います。
// audit.Recorder を満たします。
type Manager struct {
	client enqueuer
	server *asynq.Server
	mux    *asynq.ServeMux
	repo   audit.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewManager は Manager を初期化します。
func NewManager(queueRedisURL string, repo audit.Repository, logger *zap.Logger) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("audit repository is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opt, err := asynq.ParseRedisURI(queueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				queueAudit: 1,
			},
			Logger: logger.Sugar(),
		},
	)

	m := &Manager{
		client: asynq.NewClient(opt),
		server: server,
		mux:    asynq.NewServeMux(),
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	m.mux.HandleFunc(TaskTypeAuditRecord, m.handleAuditTask)
	return m, nil
}

// Run はワーカーを起動し、ctx がキャンセルされるまでブロックします。
func (m *Manager) Run(ctx context.Context) error {
	if err := m.server.Start(m.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	<-ctx.Done()
	m.server.Shutdown()
	return nil
}

// Close はクライアントを閉じます。
func (m *Manager) Close() error {
	return m.client.Close()
}

// Record はイベントをキューに投入します。投入できなければその場で書き込みます。
func (m *Manager) Record(ctx context.Context, ev audit.Event) {
	audit.Prepare(&ev, m.now)
	if err := m.Enqueue(ctx, ev); err != nil {
		m.logger.Warn("failed to enqueue audit event, writing synchronously",
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
		if err := m.repo.Create(ctx, &ev); err != nil {
			m.logger.Error("failed to write audit event",
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

// Enqueue はイベントを 1 件キューに投入します。
func (m *Manager) Enqueue(ctx context.Context, ev audit.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	// 同じイベントを二重に投入しないよう ID をタスク ID に使う
	task := asynq.NewTask(TaskTypeAuditRecord, body, asynq.Queue(queueAudit))
	_, err = m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.TaskID(ev.ID))
	return err
}

func (m *Manager) handleAuditTask(ctx context.Context, task *asynq.Task) error {
	var ev audit.Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return fmt.Errorf("decode audit payload: %w: %w", err, asynq.SkipRetry)
	}
	if ev.ID == "" || ev.Type == "" {
		return fmt.Errorf("incomplete audit payload: %w", asynq.SkipRetry)
	}
	return m.repo.Create(ctx, &ev)
}
