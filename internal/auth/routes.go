package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/crm-console/internal/authz"
	"github.com/yourusername/crm-console/internal/identity"
)

// CSRFExemptPaths は CSRF 検証を行わない認証エンドポイントです。
// ログインは入力検証から順に判定し、ログアウトは常に Cookie を消去します。
var CSRFExemptPaths = []string{"/api/auth/login", "/api/auth/logout"}

// Mount は /api 配下に認証関連のルートを登録します。
func (m *Manager) Mount(api *gin.RouterGroup) {
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/login", m.Login)
		authRoutes.POST("/logout", m.Logout)
		authRoutes.POST("/register", m.Register)
		authRoutes.POST("/refresh", m.Refresh)
		authRoutes.GET("/session", m.Session)
		authRoutes.GET("/csrf", m.CSRFToken)
	}

	api.PUT("/users/:id/password", m.ChangePassword)

	admin := api.Group("/admin", authz.RequireRole(identity.RoleAdmin, m.debug))
	{
		admin.POST("/users/:id/reset-password", m.ResetPassword)
	}
}
