package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/pricer/response"
	"github.com/wyfcoding/pricer/xerrors"
)

// Recovery 捕获处理链中的 panic，记录堆栈并返回 500。
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.ErrorContext(c.Request.Context(), "panic recovered",
				"panic", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, xerrors.Internal("internal server error", fmt.Errorf("panic: %v", rec)))
			c.Abort()
		}()
		c.Next()
	}
}
