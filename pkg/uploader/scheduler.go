package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"chunkvault/pkg/log"

	"golang.org/x/sync/errgroup"
)

// SchedulerOptions 配置分片调度器。
type SchedulerOptions struct {
	ChunkSize       int64
	ParallelLimit   int
	FileID          FileIDFunc
	ConfirmAttempts int
	ConfirmInterval time.Duration
}

// ChunkScheduler 把一个文件切分为固定大小的分片，跳过服务端已有的分片，
// 以不超过 ParallelLimit 的并发上传其余分片。
type ChunkScheduler struct {
	api  *Client
	opts SchedulerOptions
}

// NewChunkScheduler 创建 ChunkScheduler，未设置的选项使用默认值。
func NewChunkScheduler(api *Client, opts SchedulerOptions) *ChunkScheduler {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 5 << 20
	}
	if opts.ParallelLimit <= 0 {
		opts.ParallelLimit = 3
	}
	if opts.FileID == nil {
		opts.FileID = MetadataFileID
	}
	if opts.ConfirmAttempts <= 0 {
		opts.ConfirmAttempts = 1
	}
	return &ChunkScheduler{api: api, opts: opts}
}

// chunkPlan 描述一个文件的切分方式。
type chunkPlan struct {
	chunkSize int64
	lengths   []int64
}

func planChunks(size, chunkSize int64) chunkPlan {
	total := int((size + chunkSize - 1) / chunkSize)
	lengths := make([]int64, total)
	for i := range lengths {
		lengths[i] = chunkSize
		if rest := size - int64(i)*chunkSize; rest < chunkSize {
			lengths[i] = rest
		}
	}
	return chunkPlan{chunkSize: chunkSize, lengths: lengths}
}

func (p chunkPlan) offset(index int) int64 { return int64(index) * p.chunkSize }

// Upload 上传 src。返回 nil 错误意味着服务端已经确认了最终文件：
// 要么某个分片响应为 complete，要么文件列表中出现了同名同大小的文件。
func (s *ChunkScheduler) Upload(ctx context.Context, src Source, onProgress ProgressFunc) (*FileItem, error) {
	size := src.Size()
	if size <= 0 {
		return nil, &ValidationError{Message: fmt.Sprintf("%s is empty", src.Name())}
	}
	fileID, err := s.opts.FileID(src, s.opts.ChunkSize)
	if err != nil {
		return nil, err
	}

	plan := planChunks(size, s.opts.ChunkSize)
	totalChunks := len(plan.lengths)
	tracker := newProgressTracker(size, plan.lengths, onProgress)

	stored := make([]bool, totalChunks)
	known, err := s.api.QueryStatus(ctx, fileID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warnf("[ChunkScheduler] 查询分片状态失败，按未上传处理, fileId: %s, error: %v", fileID, err)
		known = nil
	}
	for _, index := range known {
		if index >= 0 && index < totalChunks && !stored[index] {
			stored[index] = true
			tracker.preload(index)
		}
	}
	tracker.report()

	pending := make([]int, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		if !stored[i] {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		// 分片都在但从未合并（例如服务端在合并前重启），重新提交最后一个分片触发合并
		pending = append(pending, totalChunks-1)
	}
	log.Infof("[ChunkScheduler] 开始上传, file: %s, fileId: %s, 分片: %d, 待上传: %d", src.Name(), fileID, totalChunks, len(pending))

	var completed atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ParallelLimit)
	for _, index := range pending {
		if gctx.Err() != nil {
			break
		}
		index := index
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data := make([]byte, plan.lengths[index])
			if n, err := src.ReadAt(data, plan.offset(index)); err != nil && !(errors.Is(err, io.EOF) && n == len(data)) {
				return fmt.Errorf("read chunk %d: %w", index, err)
			}

			resp, err := s.api.UploadChunk(gctx, ChunkUpload{
				FileID:      fileID,
				FileName:    src.Name(),
				Index:       index,
				TotalChunks: totalChunks,
				Data:        data,
			}, func(n int64) { tracker.update(index, n) })
			if err != nil {
				return fmt.Errorf("chunk %d: %w", index, err)
			}

			stored[index] = true
			tracker.markDone(index)
			if resp.Status == StatusComplete {
				completed.Store(true)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("[ChunkScheduler] 上传中止, file: %s, error: %v", src.Name(), err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item := &FileItem{Name: src.Name(), Size: size}
	if completed.Load() {
		tracker.finish()
		return item, nil
	}

	for _, ok := range stored {
		if !ok {
			return nil, ErrIncomplete
		}
	}

	// 所有分片都在服务端，但没有收到 complete：可能是另一个会话完成了合并，也可能合并尚未发生。
	if err := s.confirmMerged(ctx, *item); err != nil {
		return nil, err
	}
	tracker.finish()
	return item, nil
}

func (s *ChunkScheduler) confirmMerged(ctx context.Context, want FileItem) error {
	for attempt := 1; attempt <= s.opts.ConfirmAttempts; attempt++ {
		files, err := s.api.ListFiles(ctx)
		if err != nil {
			log.Warnf("[ChunkScheduler] 确认合并时查询文件列表失败, file: %s, error: %v", want.Name, err)
		}
		for _, f := range files {
			if f == want {
				return nil
			}
		}
		if attempt == s.opts.ConfirmAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.ConfirmInterval):
		}
	}
	return ErrMergeUnconfirmed
}
