// Package scheduler 基于 robfig/cron 提供带超时、防重入与指标采集的定时任务调度。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wyfcoding/pricer/logging"
	"github.com/wyfcoding/pricer/metrics"
)

var (
	// ErrJobNameEmpty 任务名称为空。
	ErrJobNameEmpty = errors.New("job name is empty")
	// ErrJobAlreadyExists 任务名称重复。
	ErrJobAlreadyExists = errors.New("job already exists")
	// ErrJobHandlerNil 任务处理函数为空。
	ErrJobHandlerNil = errors.New("job handler is nil")
)

// Job 定义定时任务函数原型。
type Job func(ctx context.Context) error

// JobConfig 定义任务调度参数。
type JobConfig struct {
	Name       string        // 任务名称（唯一）。
	Spec       string        // cron 表达式，支持 "@every 10m" 等描述符。
	Timeout    time.Duration // 单次执行超时，0 表示不限制。
	RunOnStart bool          // 是否在启动时立即执行一次。
}

// Scheduler 负责任务的统一调度与生命周期管理。
type Scheduler struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	cron    *cron.Cron

	mu      sync.Mutex
	jobs    map[string]*jobRunner
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

type jobRunner struct {
	cfg     JobConfig
	handler Job
	busy    atomic.Bool
}

// NewScheduler 创建任务调度器。m 可以为 nil。
func NewScheduler(logger *logging.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	// 支持可选的秒字段与 @every 等描述符
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger.Logger,
		metrics: m,
		cron:    cron.New(cron.WithParser(parser), cron.WithLogger(cronLogger{logger.Logger})),
		jobs:    make(map[string]*jobRunner),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob 注册一个新的调度任务。
func (s *Scheduler) AddJob(cfg JobConfig, handler Job) error {
	if cfg.Name == "" {
		return ErrJobNameEmpty
	}
	if handler == nil {
		return ErrJobHandlerNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[cfg.Name]; exists {
		return ErrJobAlreadyExists
	}

	runner := &jobRunner{cfg: cfg, handler: handler}
	if _, err := s.cron.AddFunc(cfg.Spec, func() { s.execute(runner) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", cfg.Spec, cfg.Name, err)
	}
	s.jobs[cfg.Name] = runner
	return nil
}

// Start 启动调度器，RunOnStart 的任务立即异步执行一次。
func (s *Scheduler) Start(context.Context) error {
	s.mu.Lock()
	for _, runner := range s.jobs {
		if runner.cfg.RunOnStart {
			s.running.Add(1)
			go func() {
				defer s.running.Done()
				s.execute(runner)
			}()
		}
	}
	s.mu.Unlock()

	s.cron.Start()
	return nil
}

// Stop 取消执行中的任务并等待其退出。
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.running.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// RunNow 同步执行指定任务一次，用于手动触发与测试。
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	runner, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	return s.execute(runner)
}

// execute 同一任务不会重入，上一次未结束时本次跳过。
func (s *Scheduler) execute(runner *jobRunner) error {
	name := runner.cfg.Name
	if !runner.busy.CompareAndSwap(false, true) {
		s.logger.Warn("scheduler job skipped (already running)", "job", name)
		s.metrics.ObserveJob(name, "skipped", 0)
		return nil
	}
	defer runner.busy.Store(false)

	ctx := s.ctx
	if runner.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runner.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := runner.handler(ctx)
	if err != nil {
		s.metrics.ObserveJob(name, "failed", time.Since(start))
		s.logger.Error("scheduler job failed", "job", name, "error", err)
		return err
	}
	s.metrics.ObserveJob(name, "success", time.Since(start))
	s.logger.Debug("scheduler job succeeded", "job", name, "cost", time.Since(start))
	return nil
}

// cronLogger 将 cron 内部日志接入 slog。
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
