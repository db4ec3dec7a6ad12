// Package main 是上传服务的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chunkvault/internal/config"
	"chunkvault/internal/handler"
	"chunkvault/internal/pipeline"
	"chunkvault/internal/repository"
	"chunkvault/internal/service"
	"chunkvault/pkg/database"
	"chunkvault/pkg/kafka"
	"chunkvault/pkg/log"
	"chunkvault/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化可选的外部依赖
	var lease service.MergeLocker
	if cfg.Redis.Enabled {
		if err := database.InitRedis(cfg.Redis); err != nil {
			log.Fatal("初始化 Redis 失败", err)
		}
		lease = repository.NewRedisMergeLease(database.RDB, cfg.Redis.LeaseTTL)
	}

	var notifier service.CompletionNotifier
	if cfg.Kafka.Enabled {
		kafka.InitProducer(cfg.Kafka)
		notifier = kafka.Notifier{}
	}

	// 4. 初始化 Repository
	artifacts, err := repository.NewArtifactRepository(cfg.Server.UploadDir)
	if err != nil {
		log.Fatal("初始化上传目录失败", err)
	}
	chunkStore, err := repository.NewChunkStore(cfg.Server.ChunkDir, artifacts)
	if err != nil {
		log.Fatal("初始化分片目录失败", err)
	}

	// 5. 初始化 Service
	uploadService := service.NewUploadService(chunkStore, artifacts, lease, notifier)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	consumerDone := make(chan struct{})

	// 6. 启动归档消费者
	if cfg.Kafka.Enabled && cfg.MinIO.Enabled {
		if err := storage.InitMinIO(cfg.MinIO); err != nil {
			log.Fatal("初始化 MinIO 失败", err)
		}
		processor := pipeline.NewProcessor(storage.MinioClient, cfg.MinIO)
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(bgCtx, cfg.Kafka, processor)
		}()
	} else {
		close(consumerDone)
	}

	// 7. 导入 seed 目录（幂等）
	if cfg.Server.SeedDir != "" {
		go func() {
			if _, err := service.SeedFromDir(bgCtx, uploadService, cfg.Server.SeedDir); err != nil {
				log.Warnf("导入 seed 目录失败: %v", err)
			}
		}()
	}

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	uploadHandler := handler.NewUploadHandler(uploadService, cfg.Server.MaxChunkBytes(), cfg.Server.MaxSingleBytes())
	r := handler.NewRouter(uploadHandler, cfg.Server.BasePath)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	cancelBg()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	if err := kafka.CloseProducer(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	if err := database.CloseRedis(); err != nil {
		log.Errorf("关闭 Redis 失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
