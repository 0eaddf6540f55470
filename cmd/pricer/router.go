package main

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/wyfcoding/pricer/config"
	"github.com/wyfcoding/pricer/health"
	"github.com/wyfcoding/pricer/limiter"
	"github.com/wyfcoding/pricer/logging"
	"github.com/wyfcoding/pricer/metrics"
	"github.com/wyfcoding/pricer/middleware"
	"github.com/wyfcoding/pricer/pricing"
	"github.com/wyfcoding/pricer/server"
)

// newRouter 组装 HTTP 引擎：中间件、定价接口（按客户端 IP 限流）、健康检查，以及未单独监听时的指标接口。
func newRouter(cfg *config.Config, svc *pricing.Service, m *metrics.Metrics, logger *logging.Logger) *gin.Engine {
	httpCfg := cfg.Server.HTTP
	handlers := []gin.HandlerFunc{
		middleware.Recovery(logger.Logger),
		middleware.Tracing(cfg.Server.Name),
		middleware.RequestID(),
		middleware.Logger(logger.Logger, httpCfg.SlowThreshold),
	}
	if m != nil {
		handlers = append(handlers, middleware.HTTPMetrics(m, middleware.MetricsOptions{
			SlowThreshold: httpCfg.SlowThreshold,
			SkipPaths:     []string{"/healthz", cfg.Metrics.Path},
		}))
	}
	if httpCfg.MaxBodyBytes > 0 {
		handlers = append(handlers, middleware.MaxBodyBytes(httpCfg.MaxBodyBytes))
	}
	if httpCfg.WriteTimeout > 0 {
		handlers = append(handlers, middleware.Timeout(httpCfg.WriteTimeout))
	}

	engine := server.NewDefaultGinEngine(server.ModeFor(cfg.Server.Environment), handlers...)

	checks := health.NewRegistry(0)
	checks.Register("pricer", svc.SelfCheck)
	engine.GET("/healthz", checks.Handler())

	if m != nil && cfg.Metrics.Addr == "" {
		engine.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	api := engine.Group("")
	if httpCfg.RateLimit > 0 {
		api.Use(middleware.RateLimit(limiter.NewKeyedLimiter(rate.Limit(httpCfg.RateLimit), max(httpCfg.RateBurst, 1), 0)))
	}
	pricing.NewHandler(svc).Register(api)
	return engine
}
