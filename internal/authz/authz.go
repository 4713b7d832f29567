// Package authz は「本人または管理者」などの認可判定を 1 か所にまとめます。
package authz

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/crm-console/internal/apperr"
	"github.com/yourusername/crm-console/internal/identity"
)

// ContextIdentityKey は認証済み主体を gin.Context に保存するキーです。
const ContextIdentityKey = "auth.identity"

// Authorize は主体がリソースにアクセスできるかを判定します。
//
//   - 管理者は常に許可
//   - ownerID が主体と一致すれば許可
//   - required が指定されていれば役割の強さで判定
//   - ownerID も required も空なら認証済みであれば許可
func Authorize(id *identity.Identity, ownerID string, required identity.Role) error {
	if id == nil || id.UserID == "" {
		return apperr.Authentication("ログインが必要です。")
	}
	if id.Role == identity.RoleAdmin {
		return nil
	}
	if ownerID != "" && id.UserID == ownerID {
		return nil
	}
	if required != "" && id.Role.AtLeast(required) {
		return nil
	}
	if ownerID == "" && required == "" {
		return nil
	}
	return apperr.Authorization("この操作を行う権限がありません。")
}

// SetIdentity は主体を gin.Context に保存します。
func SetIdentity(c *gin.Context, id identity.Identity) {
	c.Set(ContextIdentityKey, id)
}

// IdentityFrom は gin.Context から主体を取り出します。
func IdentityFrom(c *gin.Context) (*identity.Identity, bool) {
	v, ok := c.Get(ContextIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(identity.Identity)
	if !ok {
		return nil, false
	}
	return &id, true
}

// RequireRole は required 以上の役割を要求するミドルウェアです。
func RequireRole(required identity.Role, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		if err := Authorize(id, "", required); err != nil {
			apperr.Respond(c, err, debug)
			return
		}
		c.Next()
	}
}
