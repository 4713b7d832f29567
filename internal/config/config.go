// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevelopmentSecret は開発用のフォールバック秘密鍵です。
// release モードでこの値が使われている場合は起動を拒否します。
const DevelopmentSecret = "crm-console-dev-secret-change-me"

// 開発用 CSRF 秘密鍵。セッション用とは別の値にしておく。
const developmentCSRFSecret = DevelopmentSecret + "-csrf"

// レート制限ストアの種別
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定
	JWTSecret   string // セッショントークン署名用の秘密鍵
	CSRFSecret  string // CSRFトークン署名用の秘密鍵（JWTSecret とは別の値）
	CSRFEnforce bool   // 状態変更系APIで X-CSRF-Token を必須にするか

	// 初期管理者（存在しない場合のみ作成）
	AdminEmail    string
	AdminPassword string

	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // zap のログレベル

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// 永続化
	DatabaseURL   string // PostgreSQL 接続文字列（空ならインメモリ）
	RedisURL      string // レート制限ストア用 Redis
	QueueRedisURL string // 監査ジョブ用 Asynq Redis（空なら同期記録）

	// ログイン試行制限
	RateLimitBackend    string
	LoginMaxAttempts    int
	LoginWindow         time.Duration
	RateLimitSweepEvery time.Duration
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CSRFSecret:  getEnv("CSRF_SECRET", ""),
		CSRFEnforce: getEnvAsBool("CSRF_ENFORCE", true),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		QueueRedisURL: getEnv("QUEUE_REDIS_URL", ""),

		RateLimitBackend:    strings.ToLower(getEnv("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
		LoginMaxAttempts:    getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindow:         time.Duration(getEnvAsInt("LOGIN_WINDOW_MINUTES", 15)) * time.Minute,
		RateLimitSweepEvery: time.Duration(getEnvAsInt("RATE_LIMIT_SWEEP_MINUTES", 60)) * time.Minute,
	}

	config.applyDevelopmentFallbacks()

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// applyDevelopmentFallbacks はローカル開発時のみ秘密鍵を補完します。
func (c *Config) applyDevelopmentFallbacks() {
	if c.IsRelease() {
		return
	}
	if c.JWTSecret == "" {
		c.JWTSecret = DevelopmentSecret
	}
	if c.CSRFSecret == "" {
		c.CSRFSecret = developmentCSRFSecret
	}
}

// IsRelease は本番モードかどうかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// UsesDevelopmentSecret は開発用の秘密鍵で動作しているかを返します。
func (c *Config) UsesDevelopmentSecret() bool {
	return c.JWTSecret == DevelopmentSecret || c.CSRFSecret == DevelopmentSecret || c.CSRFSecret == developmentCSRFSecret
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	if c.LoginWindow <= 0 {
		return fmt.Errorf("LOGIN_WINDOW_MINUTES must be positive")
	}
	if c.RateLimitSweepEvery <= 0 {
		return fmt.Errorf("RATE_LIMIT_SWEEP_MINUTES must be positive")
	}

	switch c.RateLimitBackend {
	case RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND: %q", c.RateLimitBackend)
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	// 本番環境では秘密鍵のフォールバックを許さない
	if c.IsRelease() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in release mode")
		}
		if c.CSRFSecret == "" {
			return fmt.Errorf("CSRF_SECRET is required in release mode")
		}
		if c.UsesDevelopmentSecret() {
			return fmt.Errorf("development secret must not be used in release mode")
		}
		if c.JWTSecret == c.CSRFSecret {
			return fmt.Errorf("JWT_SECRET and CSRF_SECRET must differ")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in release mode")
		}
	}

	return nil
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
