package uploader

import "chunkvault/internal/model"

// 上传协议的响应结构，以别名导出，模块外的调用方也能直接使用。
type (
	FileItem             = model.FileItem
	ChunkUploadResponse  = model.ChunkUploadResponse
	SingleUploadResponse = model.SingleUploadResponse
)

// 分片上传响应中的状态值。
const (
	StatusInProgress = model.StatusInProgress
	StatusComplete   = model.StatusComplete
)
