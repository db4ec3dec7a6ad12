package repository

import (
	"context"
	"fmt"
	"time"

	"chunkvault/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// 只有持有者才能释放租约。
var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisMergeLease 用 Redis SET NX PX 实现按 fileId 的合并租约。
type RedisMergeLease struct {
	redisClient *redis.Client
	ttl         time.Duration
	retryEvery  time.Duration
}

// NewRedisMergeLease 创建一个新的 RedisMergeLease 实例。
func NewRedisMergeLease(redisClient *redis.Client, ttl time.Duration) *RedisMergeLease {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisMergeLease{redisClient: redisClient, ttl: ttl, retryEvery: 50 * time.Millisecond}
}

func (l *RedisMergeLease) leaseKey(fileID string) string {
	return "merge:lease:" + fileID
}

// Acquire 阻塞直到拿到 fileID 的租约或 ctx 结束，返回释放函数。
func (l *RedisMergeLease) Acquire(ctx context.Context, fileID string) (func(), error) {
	key := l.leaseKey(fileID)
	token := uuid.NewString()

	for {
		ok, err := l.redisClient.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire merge lease: %w", err)
		}
		if ok {
			return func() {
				if err := releaseLeaseScript.Run(context.Background(), l.redisClient, []string{key}, token).Err(); err != nil {
					log.Warnf("[RedisMergeLease] 释放合并租约失败, fileId: %s, error: %v", fileID, err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire merge lease: %w", ctx.Err())
		case <-time.After(l.retryEvery):
		}
	}
}
