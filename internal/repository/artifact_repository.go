package repository

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chunkvault/internal/model"

	"github.com/google/uuid"
)

// ArtifactRepository 管理上传目录中的最终文件。
type ArtifactRepository struct {
	uploadDir string
}

// NewArtifactRepository 创建 ArtifactRepository，并确保上传目录存在。
func NewArtifactRepository(uploadDir string) (*ArtifactRepository, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &ArtifactRepository{uploadDir: uploadDir}, nil
}

// Path 返回最终文件的路径。
func (r *ArtifactRepository) Path(fileName string) string {
	return filepath.Join(r.uploadDir, fileName)
}

// WriteAtomic 把 fill 写出的内容先落到同目录下的隐藏临时文件，fsync 后 rename 为 fileName。
// fill 返回错误时删除临时文件，fileName 保持原样。
func (r *ArtifactRepository) WriteAtomic(fileName string, fill func(w io.Writer) error) (int64, error) {
	tmpPath := filepath.Join(r.uploadDir, fmt.Sprintf(".%s.%s.merging", fileName, uuid.NewString()))
	file, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp artifact: %w", err)
	}

	counter := &countingWriter{w: file}
	if err := fill(counter); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("sync artifact: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpPath, r.Path(fileName)); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("publish artifact: %w", err)
	}
	return counter.n, nil
}

// List 列出上传目录中的最终文件，跳过目录、隐藏文件（包括合并中的临时文件）和 .gitkeep。
func (r *ArtifactRepository) List() ([]model.FileItem, error) {
	entries, err := os.ReadDir(r.uploadDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.FileItem{}, nil
		}
		return nil, err
	}

	files := make([]model.FileItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// 文件可能在扫描期间被替换
			continue
		}
		files = append(files, model.FileItem{Name: entry.Name(), Size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
