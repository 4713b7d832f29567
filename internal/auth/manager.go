// Package auth はログイン・ログアウト・セッション確認などの認証 API を提供します。
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/crm-console/internal/apperr"
	"github.com/yourusername/crm-console/internal/audit"
	"github.com/yourusername/crm-console/internal/csrf"
	"github.com/yourusername/crm-console/internal/metrics"
	"github.com/yourusername/crm-console/internal/password"
	"github.com/yourusername/crm-console/internal/ratelimit"
	"github.com/yourusername/crm-console/internal/token"
	"github.com/yourusername/crm-console/internal/users"
)

const (
	sessionMaxAge    = 24 * 60 * 60
	rememberMeMaxAge = 30 * 24 * 60 * 60

	actionLogin    = "login"
	actionRegister = "register"
)

const (
	msgMissingCredentials = "メールアドレスとパスワードを入力してください。"
	msgInvalidCredentials = "メールアドレスまたはパスワードが正しくありません。"
	msgInactiveAccount    = "このアカウントは現在利用できません。管理者にお問い合わせください。"
	msgLoginRequired      = "ログインが必要です。"
)

// Deps は Manager の依存です。Audit と Metrics は省略できます。
type Deps struct {
	Users        users.Store
	Hasher       *password.Hasher
	Tokens       *token.Service
	CSRF         *csrf.Service
	Limiter      *ratelimit.Limiter
	Audit        audit.Recorder
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	SecureCookie bool
	Debug        bool
}

// Manager は認証 API のハンドラーをまとめた構造体です。
type Manager struct {
	users        users.Store
	hasher       *password.Hasher
	tokens       *token.Service
	csrf         *csrf.Service
	limiter      *ratelimit.Limiter
	audit        audit.Recorder
	metrics      *metrics.Metrics
	logger       *zap.Logger
	secureCookie bool
	debug        bool
	now          func() time.Time

	// 存在しないメールアドレスでも同じ時間だけ bcrypt 比較を行うためのハッシュ
	dummyHash string
}

// NewManager は認証マネージャーを作成します。
func NewManager(d Deps) (*Manager, error) {
	switch {
	case d.Users == nil:
		return nil, errors.New("user store is nil")
	case d.Hasher == nil:
		return nil, errors.New("password hasher is nil")
	case d.Tokens == nil:
		return nil, errors.New("token service is nil")
	case d.CSRF == nil:
		return nil, errors.New("csrf service is nil")
	case d.Limiter == nil:
		return nil, errors.New("rate limiter is nil")
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := d.Audit
	if recorder == nil {
		recorder = nopRecorder{}
	}

	seed, err := password.GenerateRandom(32)
	if err != nil {
		return nil, fmt.Errorf("generate dummy password: %w", err)
	}
	dummyHash, err := d.Hasher.Hash(seed)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}

	return &Manager{
		users:        d.Users,
		hasher:       d.Hasher,
		tokens:       d.Tokens,
		csrf:         d.CSRF,
		limiter:      d.Limiter,
		audit:        recorder,
		metrics:      d.Metrics,
		logger:       logger,
		secureCookie: d.SecureCookie,
		debug:        d.Debug,
		now:          time.Now,
		dummyHash:    dummyHash,
	}, nil
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Login は POST /api/auth/login のハンドラーです。
// 入力検証 → 試行回数 → 資格情報 → アカウント状態 の順に判定し、最初の失敗で返します。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		m.fail(c, apperr.Validation(msgMissingCredentials))
		return
	}

	ctx := c.Request.Context()
	email := users.NormalizeEmail(req.Email)

	status, err := m.limiter.Status(ctx, email, actionLogin)
	if err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}
	if !status.Allowed {
		m.metrics.ObserveLogin(metrics.LoginLocked)
		m.metrics.ObserveRateLimited(actionLogin)
		m.record(c, audit.EventLoginLocked, "", email, "")
		// Retry-After は秒数で返す
		c.Header("Retry-After", strconv.Itoa(status.ResetInSeconds))
		m.fail(c, apperr.RateLimited(retryMessage(status.ResetInSeconds)))
		return
	}

	user, err := m.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		m.fail(c, apperr.Internal(err))
		return
	}
	if user == nil {
		m.hasher.Verify(req.Password, m.dummyHash)
		m.loginFailed(c, email, nil)
		return
	}
	if !m.hasher.Verify(req.Password, user.PasswordHash) {
		m.loginFailed(c, email, user)
		return
	}

	if !user.Active() {
		m.metrics.ObserveLogin(metrics.LoginForbidden)
		m.record(c, audit.EventLoginForbidden, user.ID, email, string(user.Status))
		m.fail(c, apperr.Authorization(msgInactiveAccount))
		return
	}

	if err := m.limiter.Reset(ctx, email, actionLogin); err != nil {
		m.logger.Warn("failed to reset login attempts", zap.String("email", email), zap.Error(err))
	}
	if err := m.users.RecordLogin(ctx, user.ID, m.now()); err != nil {
		m.logger.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	signed, err := m.tokens.Issue(user.Identity())
	if err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}
	maxAge := sessionMaxAge
	if req.RememberMe {
		maxAge = rememberMeMaxAge
	}
	m.setSessionCookie(c, signed, maxAge)

	m.metrics.ObserveLogin(metrics.LoginSuccess)
	m.record(c, audit.EventLoginSuccess, user.ID, email, "")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    user.Identity().View(),
	})
}

// loginFailed は試行回数を加算して 401 を返します。
// メールアドレスが存在しない場合と応答を区別しません。
func (m *Manager) loginFailed(c *gin.Context, email string, user *users.User) {
	ctx := c.Request.Context()
	if _, err := m.limiter.Check(ctx, email, actionLogin); err != nil {
		m.logger.Warn("failed to count login attempt", zap.String("email", email), zap.Error(err))
	}
	userID := ""
	if user != nil {
		userID = user.ID
		if err := m.users.IncrementLoginAttempts(ctx, user.ID); err != nil {
			m.logger.Warn("failed to increment login attempts", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	m.metrics.ObserveLogin(metrics.LoginFailure)
	m.record(c, audit.EventLoginFailure, userID, email, "")
	m.fail(c, apperr.Authentication(msgInvalidCredentials))
}

// Logout は POST /api/auth/logout のハンドラーです。セッションの有無にかかわらずクッキーを消します。
func (m *Manager) Logout(c *gin.Context) {
	if raw, err := c.Cookie(token.CookieName); err == nil {
		if claims, err := m.tokens.Verify(raw); err == nil {
			m.record(c, audit.EventLogout, claims.Subject, claims.Email, "")
		}
	}
	m.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Session は GET /api/auth/session のハンドラーです。
func (m *Manager) Session(c *gin.Context) {
	raw, err := c.Cookie(token.CookieName)
	if err != nil {
		m.fail(c, apperr.Authentication(msgLoginRequired))
		return
	}
	view, err := m.tokens.ResolveIdentity(raw)
	if err != nil {
		m.fail(c, apperr.Authentication(msgLoginRequired))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    view,
	})
}

// CSRFToken は GET /api/auth/csrf のハンドラーです。
func (m *Manager) CSRFToken(c *gin.Context) {
	signed, err := m.csrf.Issue()
	if err != nil {
		m.fail(c, apperr.Wrap(apperr.KindInternal, "CSRF トークンの生成に失敗しました。", err))
		return
	}
	// フロントエンドがヘッダーからも読み取れるようにする
	c.Header(csrf.HeaderName, signed)
	c.JSON(http.StatusOK, gin.H{"csrfToken": signed})
}

// Refresh は POST /api/auth/refresh のハンドラーです。有効なセッションの期限を延長します。
func (m *Manager) Refresh(c *gin.Context) {
	raw, err := c.Cookie(token.CookieName)
	if err != nil {
		m.fail(c, apperr.Authentication(msgLoginRequired))
		return
	}
	signed, err := m.tokens.Refresh(raw)
	if err != nil {
		m.fail(c, apperr.Authentication(msgLoginRequired))
		return
	}
	view, err := m.tokens.ResolveIdentity(signed)
	if err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}
	m.setSessionCookie(c, signed, sessionMaxAge)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    view,
	})
}

func (m *Manager) setSessionCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     token.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie は Max-Age=0 のクッキーで上書きします。
func (m *Manager) clearSessionCookie(c *gin.Context) {
	m.setSessionCookie(c, "", -1)
}

func (m *Manager) fail(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		m.logger.Error("auth request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	apperr.Respond(c, err, m.debug)
}

func (m *Manager) record(c *gin.Context, typ audit.EventType, userID, email, detail string) {
	// リクエストの終了で記録が中断されないようにキャンセルを切り離す
	ctx := context.WithoutCancel(c.Request.Context())
	m.audit.Record(ctx, audit.Event{
		Type:      typ,
		UserID:    userID,
		Email:     email,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Detail:    detail,
	})
}

func retryMessage(seconds int) string {
	minutes := (seconds + 59) / 60
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("ログイン試行回数が上限に達しました。約%d分後に再度お試しください。", minutes)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, audit.Event) {}
