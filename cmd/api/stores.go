package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/crm-console/internal/audit"
	"github.com/yourusername/crm-console/internal/config"
	"github.com/yourusername/crm-console/internal/database"
	"github.com/yourusername/crm-console/internal/ratelimit"
	"github.com/yourusername/crm-console/internal/users"
)

// stores は永続化先をまとめたものです。
type stores struct {
	db        *sqlx.DB
	redis     *redis.Client
	users     users.Store
	auditRepo audit.Repository
	rateStore ratelimit.Store
}

// setupStores は設定に応じて PostgreSQL / Redis / インメモリの保存先を選びます。
func setupStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{}

	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL is empty; using in-memory user and audit stores")
		st.users = users.NewMemoryStore()
		st.auditRepo = audit.NewMemoryRepository(1000)
	} else {
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.db = db
		if err := database.RunMigrations(ctx, db.DB); err != nil {
			st.Close()
			return nil, err
		}
		pg, err := users.NewPostgresStore(db)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.users = pg
		st.auditRepo = audit.NewPostgresRepository(db)
	}

	switch cfg.RateLimitBackend {
	case config.RateLimitBackendRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		st.redis = redis.NewClient(opt)
		if err := st.redis.Ping(ctx).Err(); err != nil {
			st.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		st.rateStore = ratelimit.NewRedisStore(st.redis)
	default:
		st.rateStore = ratelimit.NewMemoryStore()
	}

	return st, nil
}

// Close は開いた接続を閉じます。
func (s *stores) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
