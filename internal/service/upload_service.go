// Package service 包含了分片上传协议在服务端的业务逻辑。
package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"chunkvault/internal/model"
	"chunkvault/internal/repository"
	"chunkvault/pkg/log"
	"chunkvault/pkg/tasks"
)

// CompletionNotifier 在最终文件落盘后收到通知，失败不影响上传结果。
type CompletionNotifier interface {
	Notify(ctx context.Context, task tasks.ArtifactTask) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, tasks.ArtifactTask) error { return nil }

// ChunkRequest 是一次分片提交的参数。
type ChunkRequest struct {
	FileID      string
	FileName    string
	Index       int
	TotalChunks int
	Body        io.Reader
}

// UploadService 接口定义了文件上传相关的业务操作。
type UploadService interface {
	SubmitChunk(ctx context.Context, req ChunkRequest) (*model.ChunkUploadResponse, error)
	QueryStatus(ctx context.Context, fileID string) (*model.ChunkStatusResponse, error)
	SubmitDirect(ctx context.Context, fileName string, body io.Reader) (*model.SingleUploadResponse, error)
	ListFiles(ctx context.Context) (*model.FileListResponse, error)
}

type uploadService struct {
	chunkStore repository.ChunkStore
	artifacts  *repository.ArtifactRepository
	merges     *mergeGuard
	notifier   CompletionNotifier
}

// NewUploadService 创建一个新的 UploadService 实例。
// lease 为 nil 时只在进程内互斥；notifier 为 nil 时不发送完成通知。
func NewUploadService(chunkStore repository.ChunkStore, artifacts *repository.ArtifactRepository, lease MergeLocker, notifier CompletionNotifier) UploadService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &uploadService{
		chunkStore: chunkStore,
		artifacts:  artifacts,
		merges:     newMergeGuard(lease),
		notifier:   notifier,
	}
}

// SubmitChunk 保存一个分片；若全部分片已到齐，则在 fileId 互斥区内完成合并。
func (s *uploadService) SubmitChunk(ctx context.Context, req ChunkRequest) (*model.ChunkUploadResponse, error) {
	if err := validateChunkRequest(req); err != nil {
		return nil, err
	}
	log.Infof("[SubmitChunk] 收到分片, fileId: %s, 分片序号: %d/%d", req.FileID, req.Index, req.TotalChunks)

	if err := s.chunkStore.SaveChunk(req.FileID, req.Index, req.Body); err != nil {
		log.Errorf("[SubmitChunk] 保存分片失败, fileId: %s, 分片序号: %d, error: %v", req.FileID, req.Index, err)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if !s.chunkStore.IsComplete(req.FileID, req.TotalChunks) {
		return s.inProgress(req.FileID), nil
	}

	out, led, err := s.merges.run(ctx, req.FileID,
		func() (mergeOutcome, error) { return s.mergeChunks(req) },
		func(ctx context.Context, out mergeOutcome) {
			s.notify(ctx, tasks.ArtifactTask{
				FileID:      req.FileID,
				FileName:    req.FileName,
				Size:        out.size,
				Path:        s.artifacts.Path(req.FileName),
				Chunked:     true,
				CompletedAt: time.Now().UTC(),
			})
		})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	// 只有执行了合并的请求回答 complete，其余请求看到的是已被清理的分片。
	if !led || !out.merged {
		log.Infof("[SubmitChunk] 分片已被并发请求合并或仍不完整, fileId: %s", req.FileID)
		return s.inProgress(req.FileID), nil
	}

	return &model.ChunkUploadResponse{
		Message:        "All chunks uploaded and merged successfully",
		Status:         model.StatusComplete,
		ChunksReceived: allIndices(req.TotalChunks),
		Name:           req.FileName,
	}, nil
}

// mergeChunks 在互斥区内运行：重新检查完整性，然后合并并清理分片。
func (s *uploadService) mergeChunks(req ChunkRequest) (mergeOutcome, error) {
	// 并发的另一个请求可能已经完成合并并清理了分片。
	if !s.chunkStore.IsComplete(req.FileID, req.TotalChunks) {
		return mergeOutcome{}, nil
	}

	start := time.Now()
	size, err := s.chunkStore.Merge(req.FileID, req.TotalChunks, req.FileName)
	if err != nil {
		log.Errorf("[SubmitChunk] 合并分片失败, fileId: %s, error: %v", req.FileID, err)
		return mergeOutcome{}, err
	}
	log.Infow("[SubmitChunk] 分片合并完成",
		"fileId", req.FileID,
		"fileName", req.FileName,
		"totalChunks", req.TotalChunks,
		"size", size,
		"latency", time.Since(start).String(),
	)
	return mergeOutcome{size: size, merged: true}, nil
}

func allIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func (s *uploadService) inProgress(fileID string) *model.ChunkUploadResponse {
	return &model.ChunkUploadResponse{
		Message:        "Chunk uploaded successfully",
		Status:         model.StatusInProgress,
		ChunksReceived: s.chunkStore.ListChunkIndices(fileID),
	}
}

// QueryStatus 返回 fileId 已经保存的分片序号，只读。
func (s *uploadService) QueryStatus(ctx context.Context, fileID string) (*model.ChunkStatusResponse, error) {
	if err := validateName("fileId", fileID); err != nil {
		return nil, err
	}
	return &model.ChunkStatusResponse{UploadedChunks: s.chunkStore.ListChunkIndices(fileID)}, nil
}

// SubmitDirect 把小文件一次性写入上传目录，写入完成前文件不可见。
func (s *uploadService) SubmitDirect(ctx context.Context, fileName string, body io.Reader) (*model.SingleUploadResponse, error) {
	if err := validateName("file name", fileName); err != nil {
		return nil, err
	}

	size, err := s.artifacts.WriteAtomic(fileName, func(w io.Writer) error {
		_, err := io.Copy(w, body)
		return err
	})
	if err != nil {
		log.Errorf("[SubmitDirect] 保存文件失败, fileName: %s, error: %v", fileName, err)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	log.Infof("[SubmitDirect] 文件直传成功, fileName: %s, size: %d", fileName, size)

	s.notify(ctx, tasks.ArtifactTask{
		FileName:    fileName,
		Size:        size,
		Path:        s.artifacts.Path(fileName),
		CompletedAt: time.Now().UTC(),
	})

	return &model.SingleUploadResponse{Message: "File uploaded successfully", Name: fileName, Size: size}, nil
}

// ListFiles 列出全部已完成的最终文件。
func (s *uploadService) ListFiles(ctx context.Context) (*model.FileListResponse, error) {
	files, err := s.artifacts.List()
	if err != nil {
		log.Errorf("[ListFiles] 读取上传目录失败, error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &model.FileListResponse{Files: files}, nil
}

func (s *uploadService) notify(ctx context.Context, task tasks.ArtifactTask) {
	if err := s.notifier.Notify(ctx, task); err != nil {
		log.Warnf("[Notify] 发送完成通知失败, fileName: %s, error: %v", task.FileName, err)
	}
}

func validateChunkRequest(req ChunkRequest) error {
	if err := validateName("fileId", req.FileID); err != nil {
		return err
	}
	if err := validateName("file name", req.FileName); err != nil {
		return err
	}
	if req.TotalChunks <= 0 {
		return fmt.Errorf("%w: totalChunks must be positive", ErrValidation)
	}
	if req.Index < 0 || req.Index >= req.TotalChunks {
		return fmt.Errorf("%w: chunk index %d out of range [0, %d)", ErrValidation, req.Index, req.TotalChunks)
	}
	if req.Body == nil {
		return fmt.Errorf("%w: missing chunk body", ErrValidation)
	}
	return nil
}

// validateName 拒绝空值、路径分隔符、NUL 以及以 "." 开头的名字，保证它们只能落在各自目录之内。
func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%w: missing %s", ErrValidation, kind)
	}
	if strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: invalid %s %q", ErrValidation, kind, name)
	}
	return nil
}
