// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"time"

	"chunkvault/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 是请求 ID 使用的 HTTP 头。
const RequestIDHeader = "X-Request-Id"

// RequestLogger 是一个 Gin 中间件，记录每个请求的状态码、耗时和请求体大小。
// 上传请求体是二进制分片，不写入日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		c.Next()

		log.Infow("HTTP Request Log",
			"requestId", requestID,
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"contentLength", c.Request.ContentLength,
			"responseSize", c.Writer.Size(),
		)
	}
}
