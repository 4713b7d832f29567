// Package ratelimit は (action, identifier) 単位の固定ウィンドウ方式レート制限を提供します。
package ratelimit

import (
	"context"
	"time"
)

// Record は 1 つのキーに対する試行回数とウィンドウの終了時刻です。
type Record struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"resetAt"`
}

// expired は now がウィンドウ終了時刻を過ぎているかを返します。
func (r Record) expired(now time.Time) bool {
	return now.After(r.ResetAt)
}

// Store はレコードの保存先です。
// 単一プロセスでは MemoryStore、複数インスタンス構成では RedisStore を使います。
type Store interface {
	// Get はレコードを返します。存在しない場合は nil, nil です。
	Get(ctx context.Context, key string) (*Record, error)
	// Set はレコードを保存します。
	Set(ctx context.Context, key string, rec Record) error
	// Delete はレコードを削除します。存在しなくてもエラーにしません。
	Delete(ctx context.Context, key string) error
	// Sweep はウィンドウが終了したレコードを削除し、削除件数を返します。
	Sweep(ctx context.Context, now time.Time) (int, error)
}
