// Package storage 提供对象存储（MinIO）客户端，用于归档最终文件。
package storage

import (
	"context"
	"fmt"
	"time"

	"chunkvault/internal/config"
	"chunkvault/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 创建 MinIO 客户端，并确保归档使用的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) error {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ensureBucket(ctx, client, cfg.BucketName); err != nil {
		return err
	}
	MinioClient = client
	log.Infof("MinIO 客户端初始化成功, endpoint: %s, bucket: %s", cfg.Endpoint, cfg.BucketName)
	return nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	log.Infof("存储桶 '%s' 不存在，正在创建...", bucket)
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}
