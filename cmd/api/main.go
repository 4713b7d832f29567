// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/crm-console/internal/audit"
	"github.com/yourusername/crm-console/internal/auth"
	"github.com/yourusername/crm-console/internal/authz"
	"github.com/yourusername/crm-console/internal/config"
	"github.com/yourusername/crm-console/internal/csrf"
	"github.com/yourusername/crm-console/internal/gate"
	"github.com/yourusername/crm-console/internal/identity"
	"github.com/yourusername/crm-console/internal/logging"
	"github.com/yourusername/crm-console/internal/metrics"
	"github.com/yourusername/crm-console/internal/password"
	"github.com/yourusername/crm-console/internal/ratelimit"
	"github.com/yourusername/crm-console/internal/token"
)

const (
	serviceName     = "crm-console-api"
	shutdownTimeout = 10 * time.Second
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.GinMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.UsesDevelopmentSecret() {
		logger.Warn("running with the development secret; set JWT_SECRET and CSRF_SECRET before deploying")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// app はルーター構築に必要な部品です。
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tokens    *token.Service
	csrf      *csrf.Service
	auth      *auth.Manager
	auditRepo audit.Repository
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	st, err := setupStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	recorder, jobManager, err := setupAuditRecorder(cfg, st.auditRepo, logger)
	if err != nil {
		return err
	}
	if jobManager != nil {
		defer jobManager.Close()
	}

	a, err := newApp(cfg, logger, st, recorder)
	if err != nil {
		return err
	}
	if _, err := a.auth.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting API server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	// Redis の場合はキーの TTL で消えるので掃除は不要
	if cfg.RateLimitBackend == config.RateLimitBackendMemory {
		sweeper := ratelimit.NewSweeper(st.rateStore, cfg.RateLimitSweepEvery, logger)
		g.Go(func() error { return sweeper.Run(gctx) })
	}
	if jobManager != nil {
		g.Go(func() error { return jobManager.Run(gctx) })
	}
	return g.Wait()
}

func newApp(cfg *config.Config, logger *zap.Logger, st *stores, recorder audit.Recorder) (*app, error) {
	tokens, err := token.NewService(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	csrfSvc, err := csrf.NewService(cfg.CSRFSecret, nil)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(st.rateStore,
		ratelimit.WithLimit(cfg.LoginMaxAttempts),
		ratelimit.WithWindow(cfg.LoginWindow),
	)
	m := metrics.New(serviceName)

	authManager, err := auth.NewManager(auth.Deps{
		Users:        st.users,
		Hasher:       password.NewHasher(password.DefaultCost),
		Tokens:       tokens,
		CSRF:         csrfSvc,
		Limiter:      limiter,
		Audit:        recorder,
		Metrics:      m,
		Logger:       logger,
		SecureCookie: cfg.IsRelease(),
		Debug:        !cfg.IsRelease(),
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		tokens:    tokens,
		csrf:      csrfSvc,
		auth:      authManager,
		auditRepo: st.auditRepo,
	}, nil
}

// router はミドルウェアとルートを組み立てます。
// ゲートは全ルートの手前で動き、公開パス以外は認証を要求します。
func (a *app) router() *gin.Engine {
	router := gin.New()
	router.Use(
		logging.RequestID(),
		logging.Recovery(a.logger),
		logging.Requests(a.logger),
		a.metrics.Middleware(),
	)

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = a.cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		logging.RequestIDHeader,
		csrf.HeaderName, // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{csrf.HeaderName, logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	router.Use(gate.Middleware(gate.DefaultPolicy(), a.tokens, a.metrics))
	if a.cfg.CSRFEnforce {
		router.Use(a.csrf.Require(auth.CSRFExemptPaths...))
	}

	a.setupRoutes(router)
	return router
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func (a *app) setupRoutes(router *gin.Engine) {
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	api := router.Group("/api")
	a.auth.Mount(api)

	debug := !a.cfg.IsRelease()
	admin := api.Group("/admin", authz.RequireRole(identity.RoleAdmin, debug))
	{
		admin.GET("/audit", audit.ListHandler(a.auditRepo, debug))
	}
}
