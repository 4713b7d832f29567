// Package identity は認証済み主体を表す型をまとめます。
package identity

import "strings"

// Role はユーザーの役割です。閉じた集合で、ParseRole 以外から作らないでください。
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// rank は権限の強さです。大きいほど強い。
var rank = map[Role]int{
	RoleUser:    1,
	RoleManager: 2,
	RoleAdmin:   3,
}

// ParseRole は文字列を Role に変換します。未知の値は false を返します。
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := rank[r]
	return r, ok
}

// Valid は r が既知の役割かを返します。
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// AtLeast は r が required 以上の権限を持つかを返します。
func (r Role) AtLeast(required Role) bool {
	have, ok := rank[r]
	if !ok {
		return false
	}
	need, ok := rank[required]
	if !ok {
		return false
	}
	return have >= need
}

// Identity はトークンに埋め込む主体情報です。
type Identity struct {
	UserID    string
	Email     string
	Name      string
	Role      Role
	AvatarURL string
}

// UserView はクライアントへ返す、パスワードハッシュを含まないユーザー表現です。
type UserView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatarUrl"`
}

// View は Identity を UserView に射影します。
func (id Identity) View() UserView {
	return UserView{
		ID:        id.UserID,
		Name:      id.Name,
		Email:     id.Email,
		Role:      id.Role,
		AvatarURL: id.AvatarURL,
	}
}
