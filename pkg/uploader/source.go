// Package uploader 是分片上传协议的客户端：切分文件、断点续传、限流并发上传与进度汇总。
package uploader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Source 是一个待上传的文件。实现必须支持并发 ReadAt。
type Source interface {
	io.ReaderAt
	Name() string
	Size() int64
	ModTime() time.Time
}

// LocalFile 是磁盘上的文件。
type LocalFile struct {
	file *os.File
	info os.FileInfo
}

// OpenFile 打开一个本地文件作为 Source。
func OpenFile(path string) (*LocalFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &LocalFile{file: file, info: info}, nil
}

func (f *LocalFile) ReadAt(p []byte, off int64) (int, error) { return f.file.ReadAt(p, off) }
func (f *LocalFile) Name() string                            { return filepath.Base(f.info.Name()) }
func (f *LocalFile) Size() int64                             { return f.info.Size() }
func (f *LocalFile) ModTime() time.Time                      { return f.info.ModTime() }

// Close closes the underlying file.
func (f *LocalFile) Close() error {
	return f.file.Close()
}

type bytesSource struct {
	*bytes.Reader
	name    string
	modTime time.Time
}

// NewBytesSource wraps an in-memory payload as a Source.
func NewBytesSource(name string, data []byte, modTime time.Time) Source {
	return &bytesSource{Reader: bytes.NewReader(data), name: name, modTime: modTime}
}

func (s *bytesSource) Name() string       { return s.name }
func (s *bytesSource) ModTime() time.Time { return s.modTime }
