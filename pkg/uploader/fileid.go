package uploader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// contentPrefixBytes 是内容指纹读取的最大前缀长度。
const contentPrefixBytes = 1 << 20

// FileIDFunc 为一个文件计算 FileIdentifier，同一文件以同一分片大小多次调用必须得到相同结果。
// 分片序号只在一种切分方式下有意义，所以 chunkSize 必须参与计算，
// 否则换了分片大小的续传会复用旧的分片记录，合并出错位的文件。
type FileIDFunc func(src Source, chunkSize int64) (string, error)

// MetadataFileID 使用 "<name>-<size>-<mtimeMillis>-<chunkSize>" 作为标识。
// 名称、大小和修改时间完全相同的两个文件会冲突。
func MetadataFileID(src Source, chunkSize int64) (string, error) {
	return fmt.Sprintf("%s-%d-%d-%d", src.Name(), src.Size(), src.ModTime().UnixMilli(), chunkSize), nil
}

// ContentFileID 对文件名、总大小、分片大小和前 1 MiB 内容做 sha256。
// 文件名必须参与计算：内容相同但名字不同的文件不能共用分片记录。
func ContentFileID(src Source, chunkSize int64) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%d:%d:", src.Name(), src.Size(), chunkSize)
	n := src.Size()
	if n > contentPrefixBytes {
		n = contentPrefixBytes
	}
	if _, err := io.Copy(h, io.NewSectionReader(src, 0, n)); err != nil {
		return "", fmt.Errorf("hash %s: %w", src.Name(), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileIDFuncFor 根据配置名返回对应的 FileIDFunc。
func FileIDFuncFor(mode string) (FileIDFunc, error) {
	switch mode {
	case "", "metadata":
		return MetadataFileID, nil
	case "content":
		return ContentFileID, nil
	default:
		return nil, fmt.Errorf("unknown file id mode %q", mode)
	}
}
