// Package repository 定义了分片记录与最终文件在本地磁盘上的持久化操作。
package repository

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"chunkvault/pkg/log"

	"github.com/google/uuid"
)

// ChunkStore 接口定义了分片记录的持久化操作。
type ChunkStore interface {
	SaveChunk(fileID string, index int, r io.Reader) error
	ListChunkIndices(fileID string) []int
	IsComplete(fileID string, totalChunks int) bool
	Merge(fileID string, totalChunks int, fileName string) (int64, error)
	Cleanup(fileID string, totalChunks int) error
}

// fsChunkStore 把分片保存为 <chunkDir>/<fileID>.part_<index>，合并结果写入 artifacts。
type fsChunkStore struct {
	chunkDir  string
	artifacts *ArtifactRepository
}

// NewChunkStore 创建一个基于本地文件系统的 ChunkStore，并确保分片目录存在。
func NewChunkStore(chunkDir string, artifacts *ArtifactRepository) (ChunkStore, error) {
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	return &fsChunkStore{chunkDir: chunkDir, artifacts: artifacts}, nil
}

func (s *fsChunkStore) chunkPath(fileID string, index int) string {
	return filepath.Join(s.chunkDir, fmt.Sprintf("%s.part_%d", fileID, index))
}

// SaveChunk 先写入临时文件再 rename，覆盖同一序号的旧内容，列表扫描不会看到写了一半的分片。
func (s *fsChunkStore) SaveChunk(fileID string, index int, r io.Reader) error {
	target := s.chunkPath(fileID, index)
	tmpPath := fmt.Sprintf("%s.%s.partial", target, uuid.NewString())

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create chunk %d: %w", index, err)
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write chunk %d: %w", index, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close chunk %d: %w", index, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit chunk %d: %w", index, err)
	}
	return nil
}

// ListChunkIndices 扫描分片目录，返回 fileID 已保存的全部序号（升序）。
// 目录不可读时视为尚未上传任何分片。
func (s *fsChunkStore) ListChunkIndices(fileID string) []int {
	entries, err := os.ReadDir(s.chunkDir)
	if err != nil {
		log.Warnf("[ListChunkIndices] 读取分片目录失败，按无分片处理: %v", err)
		return []int{}
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(fileID) + `\.part_(\d+)$`)
	indices := make([]int, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// IsComplete 当且仅当已保存的序号恰好是 {0, …, totalChunks-1} 时返回 true。
func (s *fsChunkStore) IsComplete(fileID string, totalChunks int) bool {
	return CoversAll(s.ListChunkIndices(fileID), totalChunks)
}

// CoversAll 判断 indices 是否恰好等于 {0, …, totalChunks-1}。
func CoversAll(indices []int, totalChunks int) bool {
	if totalChunks <= 0 || len(indices) != totalChunks {
		return false
	}
	seen := make([]bool, totalChunks)
	for _, index := range indices {
		if index < 0 || index >= totalChunks || seen[index] {
			return false
		}
		seen[index] = true
	}
	return true
}

// Merge 按序号升序把全部分片写入最终文件。写入过程发生在临时文件中，全部成功后才 rename 到位；
// 失败时不会留下可见的最终文件，也不会删除分片记录。成功后清理分片。
func (s *fsChunkStore) Merge(fileID string, totalChunks int, fileName string) (int64, error) {
	if totalChunks <= 0 {
		return 0, errors.New("totalChunks must be positive")
	}

	size, err := s.artifacts.WriteAtomic(fileName, func(w io.Writer) error {
		for i := 0; i < totalChunks; i++ {
			if err := s.appendChunk(w, fileID, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := s.Cleanup(fileID, totalChunks); err != nil {
		// 最终文件已经完整，残留分片只影响磁盘占用。
		log.Warnf("[Merge] 清理分片失败, fileId: %s, error: %v", fileID, err)
	}
	return size, nil
}

func (s *fsChunkStore) appendChunk(w io.Writer, fileID string, index int) error {
	chunk, err := os.Open(s.chunkPath(fileID, index))
	if err != nil {
		return fmt.Errorf("open chunk %d: %w", index, err)
	}
	defer chunk.Close()

	if _, err := io.Copy(w, chunk); err != nil {
		return fmt.Errorf("append chunk %d: %w", index, err)
	}
	return nil
}

// Cleanup 删除 fileID 的全部分片记录，不存在的记录直接跳过。
func (s *fsChunkStore) Cleanup(fileID string, totalChunks int) error {
	var errs []error
	for i := 0; i < totalChunks; i++ {
		if err := os.Remove(s.chunkPath(fileID, i)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
