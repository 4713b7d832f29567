// Package gate は全リクエストの手前で認証を強制するゲートです。
//
// 判定は Decide に集約しており、Gin への依存は Middleware だけにあります。
package gate

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/crm-console/internal/authz"
	"github.com/yourusername/crm-console/internal/metrics"
	"github.com/yourusername/crm-console/internal/token"
)

// Verifier はセッショントークンを検証します。*token.Service が満たします。
type Verifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// Action はゲートの判定結果です。
type Action int

const (
	Pass Action = iota
	Unauthorized
	Redirect
)

func (a Action) String() string {
	switch a {
	case Pass:
		return "pass"
	case Unauthorized:
		return "unauthorized"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision は 1 リクエストに対する判定です。
type Decision struct {
	Action Action
	// Claims は有効なセッションで通過した場合のみ設定されます。
	Claims *token.Claims
	// Location は Redirect のときの遷移先です。
	Location string
}

// Policy はゲートが素通しするパスの定義です。
type Policy struct {
	StaticPrefixes   []string
	StaticExtensions []string
	// PublicPaths は完全一致で比較します。
	PublicPaths map[string]struct{}
	APIPrefix   string
	LoginPath   string
}

// DefaultPolicy は管理画面用の既定ポリシーを返します。
func DefaultPolicy() Policy {
	return Policy{
		StaticPrefixes: []string{"/_next/", "/static/", "/assets/", "/images/"},
		StaticExtensions: []string{
			".css", ".js", ".map", ".ico", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp",
			".woff", ".woff2", ".ttf", ".txt",
		},
		PublicPaths: map[string]struct{}{
			"/login":             {},
			"/register":          {},
			"/api/auth/login":    {},
			"/api/auth/register": {},
			"/api/auth/csrf":     {},
			"/api/auth/logout":   {},
			"/health":            {},
			"/metrics":           {},
		},
		APIPrefix: "/api/",
		LoginPath: "/login",
	}
}

// Decide はパスとクッキー値から通過・401・リダイレクトを判定します。
// 検証に失敗した場合は理由を問わず未認証として扱います。
func (p Policy) Decide(reqPath, cookieValue string, verifier Verifier) Decision {
	if p.isStatic(reqPath) {
		return Decision{Action: Pass}
	}
	if _, ok := p.PublicPaths[reqPath]; ok {
		return Decision{Action: Pass}
	}

	if cookieValue != "" && verifier != nil {
		if claims, err := verifier.Verify(cookieValue); err == nil && claims != nil {
			return Decision{Action: Pass, Claims: claims}
		}
	}

	if p.isAPI(reqPath) {
		return Decision{Action: Unauthorized}
	}
	return Decision{Action: Redirect, Location: p.LoginPath + "?redirect=" + url.QueryEscape(reqPath)}
}

func (p Policy) isStatic(reqPath string) bool {
	for _, prefix := range p.StaticPrefixes {
		if strings.HasPrefix(reqPath, prefix) {
			return true
		}
	}
	// API 配下は拡張子があっても静的ファイル扱いにしない
	if p.isAPI(reqPath) {
		return false
	}
	ext := strings.ToLower(path.Ext(reqPath))
	if ext == "" {
		return false
	}
	for _, e := range p.StaticExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (p Policy) isAPI(reqPath string) bool {
	return strings.HasPrefix(reqPath, p.APIPrefix) || reqPath == strings.TrimSuffix(p.APIPrefix, "/")
}

// Middleware はゲートを Gin のミドルウェアとして返します。router.Use で全体に適用します。
func Middleware(p Policy, verifier Verifier, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(token.CookieName)
		if err != nil {
			cookie = ""
		}

		d := p.Decide(c.Request.URL.Path, cookie, verifier)
		switch d.Action {
		case Pass:
			if d.Claims != nil {
				authz.SetIdentity(c, d.Claims.Identity())
			}
			c.Next()
		case Unauthorized:
			m.ObserveGateRejection(d.Action.String())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "ログインが必要です。",
				"code":    "AUTHENTICATION_ERROR",
			})
		default:
			m.ObserveGateRejection(d.Action.String())
			c.Header("Location", d.Location)
			c.AbortWithStatus(http.StatusTemporaryRedirect)
		}
	}
}
