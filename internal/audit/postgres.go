package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresRepository は audit_logs テーブルを使う Repository です。
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, ev *Event) error {
	const q = `
INSERT INTO audit_logs (id, event_type, user_id, email, ip_address, user_agent, detail, recorded_at)
VALUES (:id, :event_type, :user_id, :email, :ip_address, :user_agent, :detail, :recorded_at)`
	if _, err := r.db.NamedExecContext(ctx, q, ev); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, event_type, user_id, email, ip_address, user_agent, detail, recorded_at
FROM audit_logs
ORDER BY recorded_at DESC
LIMIT $1`
	events := []Event{}
	if err := r.db.SelectContext(ctx, &events, q, limit); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
