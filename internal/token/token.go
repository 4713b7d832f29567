// Package token はセッショントークン（HS256 JWT）の発行と検証を提供します。
//
// トークンは発行時点の主体情報をそのまま保持します。役割や表示名を変更しても、
// 再ログインまたは Refresh までは古い値のまま見えます（ステートレスの代償）。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yourusername/crm-console/internal/identity"
)

const (
	// Issuer はセッショントークンの iss クレームです。
	Issuer = "crm-console"
	// Audience はセッショントークンの aud クレームです。
	Audience = "crm-console-web"
	// DefaultTTL はセッショントークンの有効期間です。
	DefaultTTL = 24 * time.Hour
	// CookieName はセッショントークンを運ぶクッキー名です。
	CookieName = "auth_token"
)

var (
	// ErrInvalidToken は署名不正・発行者/受信者不一致・期限切れをまとめたエラーです。
	// 呼び出し側は理由を区別せず「未認証」として扱います。
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSecret は署名鍵が設定されていない場合のエラーです。
	ErrMissingSecret = errors.New("token secret is not configured")
)

// Claims はセッショントークンのペイロードです。
type Claims struct {
	Email  string        `json:"email"`
	Name   string        `json:"name"`
	Role   identity.Role `json:"role"`
	Avatar string        `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Identity はクレームから主体情報を取り出します。
func (c *Claims) Identity() identity.Identity {
	return identity.Identity{
		UserID:    c.Subject,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		AvatarURL: c.Avatar,
	}
}

// Service は HS256 でトークンを署名・検証します。
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option は Service の設定を変更します。
type Option func(*Service)

// WithTTL は有効期間を変更します。
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock は現在時刻の取得関数を差し替えます（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService は Service を作成します。secret が空の場合は設定不備としてエラーを返します。
func NewService(secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	s := &Service{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// TTL は有効期間を返します。
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue は主体情報に iat/exp/iss/aud を付けて署名したトークンを返します。
func (s *Service) Issue(id identity.Identity) (string, error) {
	now := s.now()
	claims := Claims{
		Email:  id.Email,
		Name:   id.Name,
		Role:   id.Role,
		Avatar: id.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify は署名・iss・aud・exp をすべて検証し、成功した場合のみクレームを返します。
// 失敗理由にかかわらず ErrInvalidToken を返します。
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh は有効なトークンと同じ主体情報で iat/exp を更新したトークンを発行します。
// 期限切れ・改ざんされたトークンは延長しません。
func (s *Service) Refresh(tokenString string) (string, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return s.Issue(claims.Identity())
}

// ResolveIdentity はトークンを検証し、ユーザー表現に射影します。ストアには問い合わせません。
func (s *Service) ResolveIdentity(tokenString string) (*identity.UserView, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	view := claims.Identity().View()
	return &view, nil
}
