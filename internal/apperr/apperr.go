// Package apperr は API 境界で使うエラー分類と JSON 応答への変換を提供します。
package apperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind はエラーの分類です。
type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindAuthentication Kind = "AUTHENTICATION_ERROR"
	KindAuthorization  Kind = "AUTHORIZATION_ERROR"
	KindRateLimited    Kind = "RATE_LIMITED"
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindInternal       Kind = "INTERNAL_ERROR"
)

// Status は分類に対応する HTTP ステータスを返します。
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusLocked
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error はクライアントに返すメッセージを持つエラーです。
// Message は利用者向けの短い文言、Err は内部原因（開発モードでのみ露出）です。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New は分類とメッセージからエラーを作成します。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap は内部原因を保持したエラーを作成します。
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error     { return New(KindValidation, message) }
func Authentication(message string) *Error { return New(KindAuthentication, message) }
func Authorization(message string) *Error  { return New(KindAuthorization, message) }
func RateLimited(message string) *Error    { return New(KindRateLimited, message) }
func NotFound(message string) *Error       { return New(KindNotFound, message) }
func Conflict(message string) *Error       { return New(KindConflict, message) }

// Internal は予期しないエラーを包みます。
func Internal(err error) *Error {
	return Wrap(KindInternal, "サーバー内部でエラーが発生しました。", err)
}

// KindOf は err の分類を返します。分類できない場合は KindInternal です。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Respond は err を {success:false,error,code} 形式で返します。
// debug が true のときだけ内部原因を details に含めます。
func Respond(c *gin.Context, err error, debug bool) {
	var appErr *Error
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, context.Canceled):
		appErr = Wrap(KindInternal, "リクエストがキャンセルされました。", err)
	default:
		appErr = Internal(err)
	}

	body := gin.H{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Kind,
	}
	if debug && appErr.Err != nil {
		body["details"] = appErr.Err.Error()
	}
	c.AbortWithStatusJSON(appErr.Kind.Status(), body)
}
