// Package database 负责初始化 Redis 客户端。
package database

import (
	"context"
	"fmt"
	"time"

	"chunkvault/internal/config"
	"chunkvault/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 是全局 Redis 客户端，未启用 Redis 时为 nil。
var RDB *redis.Client

// InitRedis 连接 Redis 并确认可用。
func InitRedis(cfg config.RedisConfig) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	RDB = client
	log.Infof("Redis 连接成功, addr: %s", cfg.Addr)
	return nil
}

// CloseRedis 关闭全局 Redis 客户端。
func CloseRedis() error {
	if RDB == nil {
		return nil
	}
	return RDB.Close()
}
