package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实的 Redis，设置 CHUNKVAULT_TEST_REDIS_ADDR 后运行。
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CHUNKVAULT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHUNKVAULT_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisMergeLease_ExclusiveUntilReleased(t *testing.T) {
	rdb := newTestRedis(t)
	lease := NewRedisMergeLease(rdb, time.Minute)
	fileID := "lease-" + uuid.NewString()

	release, err := lease.Acquire(context.Background(), fileID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = lease.Acquire(ctx, fileID)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := lease.Acquire(context.Background(), fileID)
	require.NoError(t, err)
	release2()

	exists, err := rdb.Exists(context.Background(), lease.leaseKey(fileID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisMergeLease_ReleaseDoesNotDropForeignLease(t *testing.T) {
	rdb := newTestRedis(t)
	lease := NewRedisMergeLease(rdb, time.Minute)
	fileID := "lease-" + uuid.NewString()

	release, err := lease.Acquire(context.Background(), fileID)
	require.NoError(t, err)
	// 模拟租约过期后被其他实例拿走
	require.NoError(t, rdb.Set(context.Background(), lease.leaseKey(fileID), "other", time.Minute).Err())

	release()
	val, err := rdb.Get(context.Background(), lease.leaseKey(fileID)).Result()
	require.NoError(t, err)
	assert.Equal(t, "other", val)
	require.NoError(t, rdb.Del(context.Background(), lease.leaseKey(fileID)).Err())
}
