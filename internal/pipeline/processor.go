// Package pipeline 定义了最终文件落盘之后的归档流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"chunkvault/internal/config"
	"chunkvault/pkg/log"
	"chunkvault/pkg/tasks"

	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
)

// ObjectUploader 是 Processor 需要的对象存储能力，*minio.Client 满足该接口。
type ObjectUploader interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Processor 把合并完成的文件镜像到对象存储。
type Processor struct {
	uploader ObjectUploader
	minioCfg config.MinIOConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(uploader ObjectUploader, minioCfg config.MinIOConfig) *Processor {
	return &Processor{uploader: uploader, minioCfg: minioCfg}
}

// ObjectName 返回文件在存储桶中的对象名。
func (p *Processor) ObjectName(task tasks.ArtifactTask) string {
	return path.Join(p.minioCfg.Prefix, task.FileName)
}

// Process 是归档的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.ArtifactTask) error {
	log.Infof("[Processor] 开始归档文件, FileName: %s, Size: %s", task.FileName, units.HumanSize(float64(task.Size)))

	// 1. 确认本地文件仍然是任务描述的那个版本
	info, err := os.Stat(task.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warnf("[Processor] 文件 '%s' 已不存在, 跳过归档", task.Path)
			return nil
		}
		return fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() != task.Size {
		log.Warnf("[Processor] 文件 '%s' 大小已变化 (任务: %d, 磁盘: %d), 按磁盘内容归档", task.Path, task.Size, info.Size())
	}

	// 2. 识别内容类型
	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(task.Path); err == nil {
		contentType = mtype.String()
	}

	// 3. 上传到 MinIO
	objectName := p.ObjectName(task)
	uploadInfo, err := p.uploader.FPutObject(ctx, p.minioCfg.BucketName, objectName, task.Path, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"file-id": task.FileID,
		},
	})
	if err != nil {
		log.Errorf("[Processor] 上传到MinIO失败, Object: %s, Error: %v", objectName, err)
		return fmt.Errorf("上传到 MinIO 失败: %w", err)
	}

	log.Infof("[Processor] 归档完成, Bucket: %s, Object: %s, ETag: %s", p.minioCfg.BucketName, objectName, uploadInfo.ETag)
	return nil
}
