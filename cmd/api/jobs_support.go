package main

import (
	"go.uber.org/zap"

	"github.com/yourusername/crm-console/internal/audit"
	"github.com/yourusername/crm-console/internal/config"
	"github.com/yourusername/crm-console/internal/jobs"
)

// setupAuditRecorder は監査イベントの書き込み方法を選びます。
// QUEUE_REDIS_URL があれば Asynq 経由、なければリクエスト内で同期的に書き込みます。
func setupAuditRecorder(cfg *config.Config, repo audit.Repository, logger *zap.Logger) (audit.Recorder, *jobs.Manager, error) {
	if cfg.QueueRedisURL == "" {
		return audit.NewSyncRecorder(repo, logger), nil, nil
	}
	manager, err := jobs.NewManager(cfg.QueueRedisURL, repo, logger)
	if err != nil {
		return nil, nil, err
	}
	return manager, manager, nil
}
