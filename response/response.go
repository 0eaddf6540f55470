// Package response 提供了统一的 HTTP 响应封装，并将 xerrors 业务错误映射为 HTTP 状态码。
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/pricer/contextx"
	"github.com/wyfcoding/pricer/xerrors"
)

// Body 统一响应体。
type Body struct {
	Code      int            `json:"code"`
	Msg       string         `json:"msg"`
	Data      any            `json:"data,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// HTTPStatusProvider 定义了能够提供 HTTP 状态码的错误接口。
type HTTPStatusProvider interface {
	HTTPStatus() int
}

// Success 发送一个标准的成功响应：HTTP 200，业务码 0。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{
		Code:      0,
		Msg:       "success",
		Data:      data,
		RequestID: contextx.GetRequestID(c.Request.Context()),
	})
}

// SuccessWithRawData 发送原始数据 (不包装 code 和 msg)，用于健康检查等系统接口。
func SuccessWithRawData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error 发送错误响应。xerrors 错误使用其业务码与映射后的 HTTP 状态码，其余错误兜底为 500。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	body := Body{
		Code:      http.StatusInternalServerError,
		Msg:       "internal error",
		RequestID: contextx.GetRequestID(c.Request.Context()),
	}
	statusCode := http.StatusInternalServerError

	if xe, ok := xerrors.FromError(err); ok {
		statusCode = xe.HTTPStatus()
		body.Code = xe.Code
		body.Msg = xe.Message
		body.Detail = xe.Detail
		if len(xe.Context) > 0 {
			body.Context = xe.Context
		}
	} else {
		var sp HTTPStatusProvider
		if errors.As(err, &sp) {
			statusCode = sp.HTTPStatus()
			body.Code = statusCode
		}
		body.Detail = err.Error()
	}

	c.JSON(statusCode, body)
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	c.JSON(status, Body{
		Code:      status,
		Msg:       msg,
		Detail:    detail,
		RequestID: contextx.GetRequestID(c.Request.Context()),
	})
}
