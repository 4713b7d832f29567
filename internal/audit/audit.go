// Package audit は認証関連イベントの監査ログを扱います。
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType は監査イベントの種類です。
type EventType string

const (
	EventLoginSuccess    EventType = "login_success"
	EventLoginFailure    EventType = "login_failure"
	EventLoginLocked     EventType = "login_locked"
	EventLoginForbidden  EventType = "login_forbidden"
	EventLogout          EventType = "logout"
	EventRegister        EventType = "register"
	EventPasswordChanged EventType = "password_changed"
	EventPasswordReset   EventType = "password_reset"
)

// Event は 1 件の監査レコードです。
type Event struct {
	ID         string    `db:"id" json:"id"`
	Type       EventType `db:"event_type" json:"type"`
	UserID     string    `db:"user_id" json:"userId,omitempty"`
	Email      string    `db:"email" json:"email,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent  string    `db:"user_agent" json:"userAgent,omitempty"`
	Detail     string    `db:"detail" json:"detail,omitempty"`
	RecordedAt time.Time `db:"recorded_at" json:"recordedAt"`
}

// Repository は監査イベントの保存先です。
type Repository interface {
	Create(ctx context.Context, ev *Event) error
	// ListRecent は新しい順に最大 limit 件を返します。
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Recorder はリクエスト処理から監査イベントを送る口です。
// 失敗してもリクエストは失敗させません。
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// SyncRecorder はその場で Repository に書き込む Recorder です。
type SyncRecorder struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewSyncRecorder は SyncRecorder を作成します。
func NewSyncRecorder(repo Repository, logger *zap.Logger) *SyncRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncRecorder{repo: repo, logger: logger, now: time.Now}
}

func (r *SyncRecorder) Record(ctx context.Context, ev Event) {
	Prepare(&ev, r.now)
	if err := r.repo.Create(ctx, &ev); err != nil {
		r.logger.Warn("failed to write audit event",
			zap.String("type", string(ev.Type)),
			zap.String("email", ev.Email),
			zap.Error(err),
		)
	}
}

// Prepare は ID と記録時刻が空なら埋めます。
func Prepare(ev *Event, now func() time.Time) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = now().UTC()
	}
}

// MemoryRepository は直近 capacity 件だけ保持する開発用の Repository です。
type MemoryRepository struct {
	mu       sync.Mutex
	events   []Event
	capacity int
}

// NewMemoryRepository は MemoryRepository を作成します。
func NewMemoryRepository(capacity int) *MemoryRepository {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryRepository{capacity: capacity}
}

func (r *MemoryRepository) Create(_ context.Context, ev *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
	if over := len(r.events) - r.capacity; over > 0 {
		r.events = append([]Event(nil), r.events[over:]...)
	}
	return nil
}

func (r *MemoryRepository) ListRecent(_ context.Context, limit int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]Event, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}
