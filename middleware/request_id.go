// Package middleware 提供了定价 HTTP 服务使用的 Gin 中间件。
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wyfcoding/pricer/contextx"
)

const (
	HeaderXRequestID = "X-Request-ID"
)

// maxRequestIDLen 客户端传入的请求 ID 超过该长度时重新生成。
const maxRequestIDLen = 128

// RequestID 返回一个用于生成或传递请求 ID 的 Gin 中间件，同时把客户端 IP 写入上下文。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}

		ctx := contextx.WithRequestID(c.Request.Context(), requestID)
		ctx = contextx.WithIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderXRequestID, requestID)

		c.Next()
	}
}
