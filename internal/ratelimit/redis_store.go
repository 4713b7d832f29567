package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "ratelimit:"

	// キーの TTL はウィンドウ終了時刻に合わせるが、最低でもこの長さは残す
	minRedisTTL = time.Second
)

// RedisStore はレコードを Redis に JSON で保存します。複数インスタンスで共有できます。
// 失効は Redis のキー TTL に任せます。
type RedisStore struct {
	rdb redis.Cmdable
	now func() time.Time
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := rec.ResetAt.Sub(s.now())
	if ttl < minRedisTTL {
		ttl = minRedisTTL
	}
	return s.rdb.Set(ctx, redisKey(key), payload, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, redisKey(key)).Err()
}

// Sweep は何もしません。期限切れのキーは Redis が削除します。
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}
