package pricing

import (
	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/pricer/response"
	"github.com/wyfcoding/pricer/xerrors"
)

// Handler 定价 HTTP 接口。
type Handler struct {
	svc *Service
}

// NewHandler 创建处理器。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register 在路由上挂载 /v1 下的定价接口。
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/quotes", h.Quote)
	v1.POST("/quotes/batch", h.QuoteBatch)
	v1.POST("/quotes/path", h.QuotePath)
	v1.POST("/paths", h.SamplePaths)
	v1.POST("/cross-validation", h.CrossValidate)
}

// Quote POST /v1/quotes
func (h *Handler) Quote(c *gin.Context) {
	var req QuoteRequest
	if !bind(c, &req) {
		return
	}
	q, err := h.svc.Quote(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, q)
}

// QuoteBatch POST /v1/quotes/batch
func (h *Handler) QuoteBatch(c *gin.Context) {
	var req BatchRequest
	if !bind(c, &req) {
		return
	}
	quotes, err := h.svc.QuoteBatch(c.Request.Context(), req.Requests)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, BatchResponse{Quotes: quotes})
}

// QuotePath POST /v1/quotes/path
func (h *Handler) QuotePath(c *gin.Context) {
	var req PathQuoteRequest
	if !bind(c, &req) {
		return
	}
	q, err := h.svc.QuotePath(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, q)
}

// SamplePaths POST /v1/paths
func (h *Handler) SamplePaths(c *gin.Context) {
	var req PathSampleRequest
	if !bind(c, &req) {
		return
	}
	sample, err := h.svc.SamplePaths(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sample)
}

// CrossValidate POST /v1/cross-validation
func (h *Handler) CrossValidate(c *gin.Context) {
	var req CrossValidationRequest
	if !bind(c, &req) {
		return
	}
	report, err := h.svc.CrossValidate(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// bind 解析 JSON 请求体；字段校验交给服务层。
func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		response.Error(c, xerrors.InvalidParameters("malformed request body").WithDetail("%s", err.Error()))
		return false
	}
	return true
}
