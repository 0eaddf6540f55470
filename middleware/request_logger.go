package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger 访问日志中间件。trace_id 与 request_id 由 logging.TraceHandler 从上下文注入。
// 耗时超过 slowThreshold（大于 0 时）的请求以 Warn 级别记录。
func Logger(logger *slog.Logger, slowThreshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		cost := time.Since(start)
		level := slog.LevelInfo
		if slowThreshold > 0 && cost > slowThreshold {
			level = slog.LevelWarn
		}
		if len(c.Errors) > 0 {
			level = slog.LevelError
		}

		logger.Log(c.Request.Context(), level, "http request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"cost", cost,
			"user_agent", c.Request.UserAgent(),
		)
	}
}
