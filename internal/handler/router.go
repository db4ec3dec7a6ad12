package handler

import (
	"chunkvault/internal/middleware"

	"github.com/gin-gonic/gin"
)

// NewRouter 注册上传协议的全部路由，basePath 例如 "/api"。
func NewRouter(h *UploadHandler, basePath string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	api := r.Group(basePath)
	{
		api.POST("/upload-single", h.UploadSingle)
		api.POST("/upload-chunk", h.UploadChunk)
		api.GET("/upload-chunk/status", h.GetChunkStatus)
		api.GET("/files", h.ListFiles)
	}
	return r
}
