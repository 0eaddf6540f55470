// Package health 提供进程内健康检查的注册与 HTTP 暴露。
package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultCheckTimeout = 2 * time.Second

// Checker 定义健康检查函数原型。
type Checker func(ctx context.Context) error

// Result 单项检查结果。
type Result struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Report 汇总结果。
type Report struct {
	Status string   `json:"status"`
	Checks []Result `json:"checks"`
}

// Registry 保存具名检查项。
type Registry struct {
	mu      sync.RWMutex
	checks  map[string]Checker
	timeout time.Duration
}

// NewRegistry 创建检查注册表，timeout <= 0 时使用默认值。
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Registry{checks: make(map[string]Checker), timeout: timeout}
}

// Register 注册或替换一项检查。
func (r *Registry) Register(name string, c Checker) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = c
}

// Run 并发执行全部检查，结果按名称排序。
func (r *Registry) Run(ctx context.Context) Report {
	r.mu.RLock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	checks := make([]Checker, len(names))
	sort.Strings(names)
	for i, name := range names {
		checks[i] = r.checks[name]
	}
	r.mu.RUnlock()

	results := make([]Result, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.runOne(ctx, names[i], checks[i])
		}()
	}
	wg.Wait()

	report := Report{Status: "ok", Checks: results}
	for _, res := range results {
		if !res.Healthy {
			report.Status = "degraded"
			break
		}
	}
	return report
}

func (r *Registry) runOne(ctx context.Context, name string, c Checker) (res Result) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res.Name = name
	defer func() {
		if p := recover(); p != nil {
			res.Healthy = false
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		res.Duration = time.Since(start).String()
	}()

	if err := c(ctx); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Healthy = true
	return res
}

// Handler 返回 /healthz 处理器：全部健康时 200，否则 503。
func (r *Registry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := r.Run(c.Request.Context())
		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}
