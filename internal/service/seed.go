package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chunkvault/internal/model"
	"chunkvault/pkg/log"
)

// seedChunkSize 是导入目录文件时使用的分片大小。
const seedChunkSize int64 = 5 * 1024 * 1024

// SeedFromDir 扫描目录下的文件并通过标准分片流程导入。
// 已经存在同名同大小最终文件的会被跳过，因此重复调用是幂等的。返回导入的文件数。
func SeedFromDir(ctx context.Context, uploadSvc UploadService, dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("[SeedFromDir] 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return 0, nil
	}

	existing := make(map[model.FileItem]bool)
	if list, err := uploadSvc.ListFiles(ctx); err == nil {
		for _, f := range list.Files {
			existing[f] = true
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read seed dir: %w", err)
	}

	imported := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return imported, ctx.Err()
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fi, err := entry.Info()
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if existing[model.FileItem{Name: entry.Name(), Size: fi.Size()}] {
			log.Infof("[SeedFromDir] 已存在，跳过: %s", entry.Name())
			continue
		}
		if err := seedFile(ctx, uploadSvc, path, entry.Name()); err != nil {
			log.Warnf("[SeedFromDir] 导入失败: %s, err=%v", path, err)
			continue
		}
		imported++
		log.Infof("[SeedFromDir] 导入完成: %s", entry.Name())
	}
	return imported, nil
}

func seedFile(ctx context.Context, uploadSvc UploadService, path, fileName string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := md5.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return err
	}
	if size == 0 {
		_, err := uploadSvc.SubmitDirect(ctx, fileName, bytes.NewReader(nil))
		return err
	}
	fileID := fmt.Sprintf("seed-%x", h.Sum(nil))

	totalChunks := int((size + seedChunkSize - 1) / seedChunkSize)
	for index := 0; index < totalChunks; index++ {
		offset := int64(index) * seedChunkSize
		resp, err := uploadSvc.SubmitChunk(ctx, ChunkRequest{
			FileID:      fileID,
			FileName:    fileName,
			Index:       index,
			TotalChunks: totalChunks,
			Body:        io.NewSectionReader(f, offset, seedChunkSize),
		})
		if err != nil {
			return fmt.Errorf("chunk %d: %w", index, err)
		}
		if index == totalChunks-1 && resp.Status != model.StatusComplete {
			return fmt.Errorf("merge did not complete for %s", fileName)
		}
	}
	return nil
}
