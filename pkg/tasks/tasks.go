// Package tasks defines the payloads that are sent to Kafka.
package tasks

import "time"

// ArtifactTask 描述一个已经落盘的最终文件，由合并或直传产生，供归档流水线消费。
type ArtifactTask struct {
	FileID      string    `json:"file_id,omitempty"`
	FileName    string    `json:"file_name"`
	Size        int64     `json:"size"`
	Path        string    `json:"path"`
	Chunked     bool      `json:"chunked"`
	CompletedAt time.Time `json:"completed_at"`
}
