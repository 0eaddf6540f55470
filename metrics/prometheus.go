// Package metrics 封装了基于 Prometheus 的独立注册表，以及 HTTP 与定价引擎的标准监控指标。
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了 Prometheus 注册表及预定义指标。
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	HTTPRequestsTotal     *prometheus.CounterVec   // HTTP 请求总量 (method, path, status)
	HTTPRequestDuration   *prometheus.HistogramVec // HTTP 请求耗时分布
	HTTPInFlight          *prometheus.GaugeVec     // 正在处理的 HTTP 请求数
	HTTPSlowRequestsTotal *prometheus.CounterVec   // 慢请求计数

	PricerRunsTotal    *prometheus.CounterVec   // 定价次数 (engine, style, status)
	PricerRunDuration  *prometheus.HistogramVec // 单次定价耗时 (engine)
	PricerLatticeSteps prometheus.Histogram     // 二叉树步数分布
	MonteCarloStdErr   prometheus.Gauge         // 最近一次蒙特卡洛估计的标准误差
	QuoteCacheTotal    *prometheus.CounterVec   // 报价缓存命中 (result=hit|miss)
	CrossChecksPassed  *prometheus.GaugeVec     // 最近一次交叉校验各项是否通过 (check)

	JobRunsTotal *prometheus.CounterVec   // 定时任务执行次数 (job, status)
	JobDuration  *prometheus.HistogramVec // 定时任务耗时 (job)

	BuildInfo *prometheus.GaugeVec
}

// NewMetrics 初始化并返回一个新的指标采集器。
// 它会自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.HTTPInFlight = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_server_in_flight_requests",
		Help: "Number of HTTP requests currently being served",
	}, []string{"method", "path"})

	m.HTTPSlowRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_slow_requests_total",
		Help: "Total number of HTTP requests slower than the configured threshold",
	}, []string{"method", "path"})

	m.PricerRunsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_runs_total",
		Help: "Total number of pricing runs",
	}, []string{"engine", "style", "status"})

	m.PricerRunDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricer_run_duration_seconds",
		Help:    "Pricing run latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"engine"})

	m.PricerLatticeSteps = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricer_lattice_steps",
		Help:    "Number of steps of priced binomial lattices",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	reg.MustRegister(m.PricerLatticeSteps)

	m.MonteCarloStdErr = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pricer_montecarlo_stderr",
		Help: "Standard error of the latest Monte Carlo estimate",
	})
	reg.MustRegister(m.MonteCarloStdErr)

	m.QuoteCacheTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_quote_cache_total",
		Help: "Quote cache lookups by result",
	}, []string{"result"})

	m.CrossChecksPassed = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricer_cross_validation_passed",
		Help: "Whether each check of the latest cross validation passed (1) or failed (0)",
	}, []string{"check"})

	m.JobRunsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_job_runs_total",
		Help: "Total number of scheduled job runs",
	}, []string{"job", "status"})

	m.JobDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_job_duration_seconds",
		Help:    "Scheduled job execution duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Registry 返回底层注册表，测试中用于采集指标。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePricing 记录一次定价运行。err 非空时 status 为 error。
func (m *Metrics) ObservePricing(engine, style string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PricerRunsTotal.WithLabelValues(engine, style, status).Inc()
	m.PricerRunDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
}

// ObserveSteps 记录二叉树步数。
func (m *Metrics) ObserveSteps(steps int) {
	if m == nil {
		return
	}
	m.PricerLatticeSteps.Observe(float64(steps))
}

// ObserveStdErr 记录蒙特卡洛标准误差。
func (m *Metrics) ObserveStdErr(stdErr float64) {
	if m == nil {
		return
	}
	m.MonteCarloStdErr.Set(stdErr)
}

// ObserveCache 记录一次报价缓存查询。
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.QuoteCacheTotal.WithLabelValues(result).Inc()
}

// ObserveCheck 记录交叉校验单项结果。
func (m *Metrics) ObserveCheck(name string, passed bool) {
	if m == nil {
		return
	}
	v := 0.0
	if passed {
		v = 1
	}
	m.CrossChecksPassed.WithLabelValues(name).Set(v)
}

// ObserveJob 记录一次定时任务执行，status 为 success、failed 或 skipped。
func (m *Metrics) ObserveJob(job, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	if status != "skipped" {
		m.JobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
	}
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExposeHTTP 在指定地址启动一个独立的 HTTP 服务器用于暴露指标数据。
// 返回一个清理函数用于优雅关闭该服务器。
func (m *Metrics) ExposeHTTP(addr, path string) func() {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
