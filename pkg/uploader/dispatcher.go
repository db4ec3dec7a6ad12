package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"chunkvault/pkg/log"
)

// DefaultSingleFileThreshold 是直传与分片上传的默认分界。
const DefaultSingleFileThreshold = 5 << 20

// FileUploader 上传单个文件。
type FileUploader interface {
	Upload(ctx context.Context, src Source, onProgress ProgressFunc) (*FileItem, error)
}

// Dispatcher 按文件大小选择上传方式：不超过阈值的文件一次直传，否则交给 ChunkScheduler。
type Dispatcher struct {
	api       *Client
	chunked   *ChunkScheduler
	threshold int64
}

// NewDispatcher 创建 Dispatcher，threshold <= 0 时使用 DefaultSingleFileThreshold。
func NewDispatcher(api *Client, chunked *ChunkScheduler, threshold int64) *Dispatcher {
	if threshold <= 0 {
		threshold = DefaultSingleFileThreshold
	}
	return &Dispatcher{api: api, chunked: chunked, threshold: threshold}
}

// Upload 实现 FileUploader。
func (d *Dispatcher) Upload(ctx context.Context, src Source, onProgress ProgressFunc) (*FileItem, error) {
	if src.Size() > d.threshold {
		return d.chunked.Upload(ctx, src, onProgress)
	}
	return d.uploadDirect(ctx, src, onProgress)
}

func (d *Dispatcher) uploadDirect(ctx context.Context, src Source, onProgress ProgressFunc) (*FileItem, error) {
	size := src.Size()
	data := make([]byte, size)
	if n, err := src.ReadAt(data, 0); err != nil && !(errors.Is(err, io.EOF) && int64(n) == size) {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}

	tracker := newProgressTracker(size, []int64{size}, onProgress)
	resp, err := d.api.UploadSingle(ctx, src.Name(), data, func(n int64) { tracker.update(0, n) })
	if err != nil {
		log.Errorf("[Dispatcher] 直传失败, file: %s, error: %v", src.Name(), err)
		return nil, err
	}
	tracker.finish()
	return &FileItem{Name: resp.Name, Size: resp.Size}, nil
}
