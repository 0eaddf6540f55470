package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/pricer/response"
)

// MaxBodyBytes 限制请求体大小，limit <= 0 时不生效。
// 声明的 Content-Length 超限直接拒绝，未声明长度的流在读取时截断，由 JSON 绑定报错。
func MaxBodyBytes(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	detail := fmt.Sprintf("request body must not exceed %d bytes", limit)
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			response.ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large", detail)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
