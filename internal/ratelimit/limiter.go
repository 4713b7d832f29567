package ratelimit

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"
)

const (
	// DefaultLimit はウィンドウ内で許可する試行回数です。
	DefaultLimit = 5
	// DefaultWindow はウィンドウの長さです。
	DefaultWindow = 15 * time.Minute

	lockStripes = 64
)

// Result は判定結果です。
type Result struct {
	Allowed        bool `json:"allowed"`
	Count          int  `json:"count"`
	ResetInSeconds int  `json:"resetInSeconds"`
}

// Limiter は固定ウィンドウ（スライディングではない）で試行回数を数えます。
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time

	// 同一キーの読み出しから書き込みまでを直列化する
	locks [lockStripes]sync.Mutex
}

// Option は Limiter の設定を変更します。
type Option func(*Limiter)

// WithLimit は既定の試行回数を変更します。
func WithLimit(limit int) Option {
	return func(l *Limiter) {
		if limit > 0 {
			l.limit = limit
		}
	}
}

// WithWindow は既定のウィンドウ長を変更します。
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithClock は現在時刻の取得関数を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New は Limiter を作成します。
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limit:  DefaultLimit,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit は既定の試行回数を返します。
func (l *Limiter) Limit() int {
	return l.limit
}

// Key は action と identifier からストアのキーを組み立てます。
func Key(action, identifier string) string {
	return action + ":" + identifier
}

// Check は既定の上限とウィンドウで試行を 1 回記録します。
func (l *Limiter) Check(ctx context.Context, identifier, action string) (Result, error) {
	return l.CheckWith(ctx, identifier, action, l.limit, l.window)
}

// CheckWith は上限とウィンドウを指定して試行を 1 回記録します。
//
// レコードが無いかウィンドウが終了していれば count=1 で新しいウィンドウを開始して許可、
// count が上限に達していれば増やさずに拒否、それ以外は count を増やして許可します。
func (l *Limiter) CheckWith(ctx context.Context, identifier, action string, limit int, window time.Duration) (Result, error) {
	key := Key(action, identifier)
	mu := l.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	now := l.now()
	rec, err := l.store.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit get %s: %w", key, err)
	}

	if rec == nil || rec.expired(now) {
		fresh := Record{Count: 1, ResetAt: now.Add(window)}
		if err := l.store.Set(ctx, key, fresh); err != nil {
			return Result{}, fmt.Errorf("ratelimit set %s: %w", key, err)
		}
		return Result{Allowed: true, Count: 1, ResetInSeconds: secondsUntil(now, fresh.ResetAt)}, nil
	}

	if rec.Count >= limit {
		return Result{Allowed: false, Count: rec.Count, ResetInSeconds: secondsUntil(now, rec.ResetAt)}, nil
	}

	rec.Count++
	if err := l.store.Set(ctx, key, *rec); err != nil {
		return Result{}, fmt.Errorf("ratelimit set %s: %w", key, err)
	}
	return Result{Allowed: true, Count: rec.Count, ResetInSeconds: secondsUntil(now, rec.ResetAt)}, nil
}

// Status は試行を記録せずに現在の状態を返します。
// Allowed は次の試行が許可されるかどうかです。
func (l *Limiter) Status(ctx context.Context, identifier, action string) (Result, error) {
	key := Key(action, identifier)
	now := l.now()
	rec, err := l.store.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit get %s: %w", key, err)
	}
	if rec == nil || rec.expired(now) {
		return Result{Allowed: true}, nil
	}
	return Result{
		Allowed:        rec.Count < l.limit,
		Count:          rec.Count,
		ResetInSeconds: secondsUntil(now, rec.ResetAt),
	}, nil
}

// Reset はレコードを即座に削除します。ログイン成功後に失敗回数を消すために使います。
func (l *Limiter) Reset(ctx context.Context, identifier, action string) error {
	key := Key(action, identifier)
	mu := l.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	if err := l.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("ratelimit delete %s: %w", key, err)
	}
	return nil
}

func (l *Limiter) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.locks[h.Sum32()%lockStripes]
}

func secondsUntil(now, resetAt time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
