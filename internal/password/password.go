// Package password はパスワードのハッシュ化・検証・強度判定を提供します。
package password

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost は bcrypt のワークファクターです。
const DefaultCost = 12

// DefaultRandomLength は GenerateRandom の既定の長さです。
const DefaultRandomLength = 12

// 管理者によるリセット用パスワードの文字集合
const randomCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

// 強度判定で不足していた項目のメッセージ（判定順）
const (
	FeedbackLength    = "8文字以上にしてください"
	FeedbackLowercase = "小文字を含めてください"
	FeedbackUppercase = "大文字を含めてください"
	FeedbackDigit     = "数字を含めてください"
	FeedbackSymbol    = "記号を含めてください"
)

// minValidScore 以上のスコアで有効なパスワードとみなします。
const minValidScore = 4

// ErrEmptyPassword は空のパスワードをハッシュ化しようとした場合のエラーです。
var ErrEmptyPassword = errors.New("password is empty")

// Hasher は bcrypt によるハッシュ化を行います。
type Hasher struct {
	cost int
}

// NewHasher は cost を指定して Hasher を作成します。0 以下なら DefaultCost です。
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードからソルト付きハッシュを生成します。
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

// Verify は平文とハッシュが一致するかを返します。
// 比較は bcrypt の定数時間比較に任せます。
func (h *Hasher) Verify(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Cost はハッシュに埋め込まれたワークファクターを返します。
func Cost(hash string) (int, error) {
	return bcrypt.Cost([]byte(hash))
}

// GenerateRandom は英数字と記号から一様に選んだパスワードを生成します。
// 管理者によるパスワードリセット用で、暗号鍵には使いません。
func GenerateRandom(length int) (string, error) {
	if length <= 0 {
		length = DefaultRandomLength
	}
	charsetSize := big.NewInt(int64(len(randomCharset)))
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, charsetSize)
		if err != nil {
			return "", err
		}
		sb.WriteByte(randomCharset[n.Int64()])
	}
	return sb.String(), nil
}

// Strength はパスワード強度の判定結果です。
type Strength struct {
	Score    int      `json:"score"`
	Feedback []string `json:"feedback"`
	IsValid  bool     `json:"isValid"`
}

// AssessStrength は 5 つの独立した条件でパスワードを採点します。
// 英大小文字と数字は ASCII の範囲で判定し、それ以外の文字（空白や非 ASCII 文字を含む）は記号として数えます。
func AssessStrength(pw string) Strength {
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range pw {
		switch {
		case 'a' <= r && r <= 'z':
			hasLower = true
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case '0' <= r && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	checks := []struct {
		ok       bool
		feedback string
	}{
		{len([]rune(pw)) >= 8, FeedbackLength},
		{hasLower, FeedbackLowercase},
		{hasUpper, FeedbackUppercase},
		{hasDigit, FeedbackDigit},
		{hasSymbol, FeedbackSymbol},
	}

	result := Strength{Feedback: []string{}}
	for _, check := range checks {
		if check.ok {
			result.Score++
			continue
		}
		result.Feedback = append(result.Feedback, check.feedback)
	}
	result.IsValid = result.Score >= minValidScore
	return result
}
