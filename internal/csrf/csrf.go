// Package csrf はセッションに依存しない署名付き CSRF トークンを提供します。
// ログイン前のフォームでも使えるよう、主体情報ではなくランダムなノンスを運びます。
package csrf

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// HeaderName はクライアントがトークンを送るヘッダーです。
	HeaderName = "X-CSRF-Token"
	// DefaultTTL は CSRF トークンの有効期間です。
	DefaultTTL = time.Hour

	issuer   = "crm-console-csrf"
	nonceLen = 32
)

// ErrMissingSecret は署名鍵が設定されていない場合のエラーです。
var ErrMissingSecret = errors.New("csrf secret is not configured")

type claims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// Service は CSRF トークンの発行と検証を行います。
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewService は Service を作成します。secret はセッション用とは別の値を渡してください。
func NewService(secret string, now func() time.Time) (*Service, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if now == nil {
		now = time.Now
	}
	s := &Service{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// Issue は新しいノンスを含むトークンを発行します。
func (s *Service) Issue() (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	now := s.now()
	c := claims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign csrf token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証します。
func (s *Service) Verify(tokenString string) bool {
	if tokenString == "" {
		return false
	}
	c := &claims{}
	parsed, err := s.parser.ParseWithClaims(tokenString, c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	return len(c.Nonce) == nonceLen*2
}

// Require は /api/ 配下の状態変更リクエストに有効な X-CSRF-Token を要求するミドルウェアです。
// exempt に渡したパスは検証しません。
func (s *Service) Require(exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if isSafeMethod(c.Request.Method) || !strings.HasPrefix(path, "/api/") {
			c.Next()
			return
		}
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		if !s.Verify(c.GetHeader(HeaderName)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"code":    "CSRF_INVALID",
				"error":   "ページを再読み込みしてからもう一度お試しください。",
			})
			return
		}

		c.Next()
	}
}

func generateNonce() (string, error) {
	buf := make([]byte, nonceLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
