package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/crm-console/internal/apperr"
	"github.com/yourusername/crm-console/internal/audit"
	"github.com/yourusername/crm-console/internal/authz"
	"github.com/yourusername/crm-console/internal/identity"
	"github.com/yourusername/crm-console/internal/password"
	"github.com/yourusername/crm-console/internal/users"
)

// 同一 IP からの新規登録は 1 時間に 10 件まで
const (
	registerLimit  = 10
	registerWindow = time.Hour
)

// リセット用パスワードを強度条件を満たすまで生成し直す上限
const maxResetAttempts = 10

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register は POST /api/auth/register のハンドラーです。一般ユーザーとして登録します。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		m.fail(c, apperr.Wrap(apperr.KindValidation, "名前・メールアドレス・パスワードを正しく入力してください。", err))
		return
	}

	ctx := c.Request.Context()
	res, err := m.limiter.CheckWith(ctx, c.ClientIP(), actionRegister, registerLimit, registerWindow)
	if err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}
	if !res.Allowed {
		m.metrics.ObserveRateLimited(actionRegister)
		m.fail(c, apperr.RateLimited("登録の試行回数が上限に達しました。しばらくしてから再度お試しください。"))
		return
	}

	if strength := password.AssessStrength(req.Password); !strength.IsValid {
		respondWeakPassword(c, strength)
		return
	}

	hash, err := m.hasher.Hash(req.Password)
	if err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}
	user := &users.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         identity.RoleUser,
		Status:       users.StatusActive,
	}
	if err := m.users.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrAlreadyExists) {
			m.fail(c, apperr.Conflict("このメールアドレスは既に登録されています。"))
			return
		}
		m.fail(c, apperr.Internal(err))
		return
	}

	m.record(c, audit.EventRegister, user.ID, user.Email, "")
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    user.Identity().View(),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// ChangePassword は PUT /api/users/:id/password のハンドラーです。
// 本人または管理者のみ変更できます。本人の場合は現在のパスワードを確認します。
func (m *Manager) ChangePassword(c *gin.Context) {
	caller, _ := authz.IdentityFrom(c)
	targetID := c.Param("id")
	if err := authz.Authorize(caller, targetID, identity.RoleAdmin); err != nil {
		m.fail(c, err)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		m.fail(c, apperr.Wrap(apperr.KindValidation, "新しいパスワードを入力してください。", err))
		return
	}

	ctx := c.Request.Context()
	target, err := m.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			m.fail(c, apperr.NotFound("ユーザーが見つかりません。"))
			return
		}
		m.fail(c, apperr.Internal(err))
		return
	}

	if caller.Role != identity.RoleAdmin && !m.hasher.Verify(req.CurrentPassword, target.PasswordHash) {
		m.fail(c, apperr.Authentication("現在のパスワードが正しくありません。"))
		return
	}

	if strength := password.AssessStrength(req.NewPassword); !strength.IsValid {
		respondWeakPassword(c, strength)
		return
	}

	hash, err := m.hasher.Hash(req.NewPassword)
	if err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}
	if err := m.users.UpdatePassword(ctx, target.ID, hash); err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}

	m.record(c, audit.EventPasswordChanged, target.ID, target.Email, "by:"+caller.UserID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResetPassword は POST /api/admin/users/:id/reset-password のハンドラーです。
// ランダムな仮パスワードを設定し、一度だけ応答に含めます。
func (m *Manager) ResetPassword(c *gin.Context) {
	caller, _ := authz.IdentityFrom(c)
	if err := authz.Authorize(caller, "", identity.RoleAdmin); err != nil {
		m.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	target, err := m.users.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			m.fail(c, apperr.NotFound("ユーザーが見つかりません。"))
			return
		}
		m.fail(c, apperr.Internal(err))
		return
	}

	temporary, err := generateResetPassword()
	if err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}
	hash, err := m.hasher.Hash(temporary)
	if err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}
	if err := m.users.UpdatePassword(ctx, target.ID, hash); err != nil {
		m.fail(c, apperr.Internal(err))
		return
	}
	// 仮パスワードでそのままログインできるよう失敗回数を消す
	if err := m.limiter.Reset(ctx, target.Email, actionLogin); err != nil {
		m.logger.Warn("failed to reset login attempts", zap.String("email", target.Email), zap.Error(err))
	}

	m.record(c, audit.EventPasswordReset, target.ID, target.Email, "by:"+caller.UserID)
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"temporaryPassword": temporary,
	})
}

// EnsureAdmin は email の管理者が存在しなければ作成します。既に存在する場合は何もしません。
func (m *Manager) EnsureAdmin(ctx context.Context, email, plain string) (created bool, err error) {
	if email == "" || plain == "" {
		return false, nil
	}
	if _, err := m.users.GetByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, users.ErrNotFound) {
		return false, fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := m.hasher.Hash(plain)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	admin := &users.User{
		Email:        email,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         identity.RoleAdmin,
		Status:       users.StatusActive,
	}
	if err := m.users.Create(ctx, admin); err != nil {
		if errors.Is(err, users.ErrAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("create admin: %w", err)
	}
	m.logger.Info("bootstrapped admin account", zap.String("email", admin.Email))
	return true, nil
}

func generateResetPassword() (string, error) {
	for i := 0; i < maxResetAttempts; i++ {
		candidate, err := password.GenerateRandom(password.DefaultRandomLength)
		if err != nil {
			return "", err
		}
		if password.AssessStrength(candidate).IsValid {
			return candidate, nil
		}
	}
	return "", errors.New("could not generate a password that satisfies the strength policy")
}

func respondWeakPassword(c *gin.Context, strength password.Strength) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success":  false,
		"error":    "パスワードの強度が不足しています。",
		"code":     apperr.KindValidation,
		"feedback": strength.Feedback,
	})
}
