package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval は期限切れレコードを掃除する間隔です。
const DefaultSweepInterval = time.Hour

// Sweeper は一定間隔で Store.Sweep を呼びます。
// 起動と停止は呼び出し側が Run に渡す context で管理します。
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper は Sweeper を作成します。
func NewSweeper(store Store, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は ctx がキャンセルされるまで掃除を続けます。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce は 1 回だけ掃除を行い、削除件数を返します。
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		s.logger.Warn("rate limit sweep failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		s.logger.Debug("rate limit records evicted", zap.Int("removed", removed))
	}
	return removed
}
