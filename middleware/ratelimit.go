package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/pricer/limiter"
	"github.com/wyfcoding/pricer/response"
)

// APIKeyHeader 携带调用方标识的请求头，缺省时按客户端 IP 限流。
const APIKeyHeader = "X-API-Key"

// retryAfterSeconds 被拒绝时建议的重试间隔。
const retryAfterSeconds = 1

func rateLimitKey(c *gin.Context) string {
	if key := c.GetHeader(APIKeyHeader); key != "" {
		return "key:" + key
	}
	return "ip:" + c.ClientIP()
}

// RateLimit 按调用方限流。限流器出错时放行。
func RateLimit(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := rateLimitKey(c)

		allowed, err := l.Allow(ctx, key)
		if err != nil {
			slog.ErrorContext(ctx, "rate limiter failed, letting request through", "key", key, "error", err)
			c.Next()
			return
		}
		if allowed {
			c.Next()
			return
		}

		slog.WarnContext(ctx, "rate limited", "key", key, "method", c.Request.Method, "path", c.FullPath())
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		response.ErrorWithStatus(c, http.StatusTooManyRequests, "too many requests", "pricing request rate exceeded, retry later")
		c.Abort()
	}
}
