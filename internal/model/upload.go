// Package model 定义了上传协议在 HTTP 上交换的数据结构。
package model

// 分片上传响应中的状态值。
const (
	StatusInProgress = "in-progress"
	StatusComplete   = "complete"
)

// ChunkUploadResponse 是 POST /upload-chunk 的响应体。
// ChunksReceived 总是输出数组：未完成时是已收到的分片，合并完成时是全部分片；合并完成时另外携带 Name。
type ChunkUploadResponse struct {
	Message        string `json:"message"`
	Status         string `json:"status"`
	ChunksReceived []int  `json:"chunksReceived"`
	Name           string `json:"name,omitempty"`
}

// ChunkStatusResponse 是 GET /upload-chunk/status 的响应体。
type ChunkStatusResponse struct {
	UploadedChunks []int `json:"uploadedChunks"`
}

// SingleUploadResponse 是 POST /upload-single 的响应体。
type SingleUploadResponse struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Size    int64  `json:"size,omitempty"`
}

// FileItem 描述一个已经合并完成的文件。
type FileItem struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// FileListResponse 是 GET /files 的响应体。
type FileListResponse struct {
	Files []FileItem `json:"files"`
}

// ErrorResponse 是所有失败响应的统一结构。
type ErrorResponse struct {
	Error string `json:"error"`
}
