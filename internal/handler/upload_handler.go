// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"chunkvault/internal/model"
	"chunkvault/internal/service"
	"chunkvault/pkg/log"

	"github.com/gin-gonic/gin"
)

// 客户端会按这些文本匹配友好的错误提示。
const (
	msgTooLarge        = "File too large"
	msgSaveChunkFailed = "Error saving chunk"
	msgSaveFileFailed  = "Error saving file"
)

// multipart 头和字段的额外开销。
const multipartOverhead = 64 * 1024

// UploadHandler 负责处理所有与文件上传相关的 API 请求。
type UploadHandler struct {
	uploadService  service.UploadService
	maxChunkBytes  int64
	maxSingleBytes int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例，大小限制 <= 0 表示不限制。
func NewUploadHandler(uploadService service.UploadService, maxChunkBytes, maxSingleBytes int64) *UploadHandler {
	return &UploadHandler{
		uploadService:  uploadService,
		maxChunkBytes:  maxChunkBytes,
		maxSingleBytes: maxSingleBytes,
	}
}

// UploadSingle 处理小文件直传：multipart 字段 file。
func (h *UploadHandler) UploadSingle(c *gin.Context) {
	file, header, ok := h.formFile(c, h.maxSingleBytes, "Missing required `file` key in body.")
	if !ok {
		return
	}
	defer file.Close()

	resp, err := h.uploadService.SubmitDirect(c.Request.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
			return
		}
		log.Error("UploadSingle: failed to save file", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: msgSaveFileFailed})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UploadChunk 处理分片上传：multipart 字段 file、currentChunkIndex、totalChunks、fileId。
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	file, header, ok := h.formFile(c, h.maxChunkBytes, "Missing required parameters")
	if !ok {
		return
	}
	defer file.Close()

	fileID := c.PostForm("fileId")
	indexStr := c.PostForm("currentChunkIndex")
	totalStr := c.PostForm("totalChunks")
	if fileID == "" || indexStr == "" || totalStr == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Missing required parameters"})
		return
	}
	if header.Filename == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error: "Missing filename, did you pass the filename in the multipart part of `file`?",
		})
		return
	}

	index, err := strconv.Atoi(indexStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid currentChunkIndex"})
		return
	}
	totalChunks, err := strconv.Atoi(totalStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid totalChunks"})
		return
	}

	resp, err := h.uploadService.SubmitChunk(c.Request.Context(), service.ChunkRequest{
		FileID:      fileID,
		FileName:    header.Filename,
		Index:       index,
		TotalChunks: totalChunks,
		Body:        file,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
			return
		}
		log.Error("UploadChunk: failed to save chunk", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: msgSaveChunkFailed})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetChunkStatus 返回 fileId 已上传但尚未合并的分片序号。
func (h *UploadHandler) GetChunkStatus(c *gin.Context) {
	fileID := c.Query("fileId")
	if fileID == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Missing fileId in query params"})
		return
	}

	resp, err := h.uploadService.QueryStatus(c.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
			return
		}
		log.Error("GetChunkStatus: failed", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not get uploaded chunk status"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListFiles 列出已经完成合并的文件。
func (h *UploadHandler) ListFiles(c *gin.Context) {
	resp, err := h.uploadService.ListFiles(c.Request.Context())
	if err != nil {
		log.Error("ListFiles: failed", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Could not list files"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// formFile 在限制请求体大小的前提下取出 multipart 字段 file，失败时已写好响应。
func (h *UploadHandler) formFile(c *gin.Context, limit int64, missingMsg string) (multipart.File, *multipart.FileHeader, bool) {
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: msgTooLarge})
			return nil, nil, false
		}
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: missingMsg})
		return nil, nil, false
	}
	if limit > 0 && header.Size > limit {
		c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: msgTooLarge})
		return nil, nil, false
	}

	file, err := header.Open()
	if err != nil {
		log.Error("formFile: failed to open multipart file", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: msgSaveFileFailed})
		return nil, nil, false
	}
	return file, header, true
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
