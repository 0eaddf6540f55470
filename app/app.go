// Package app 提供了应用程序的生命周期管理：启动服务器、处理退出信号、按序关闭并清理资源。
package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wyfcoding/pricer/server"
)

// defaultShutdownTimeout 关闭服务器与生命周期钩子的总超时。
const defaultShutdownTimeout = 10 * time.Second

// App 是应用程序的核心容器，负责管理应用程序的生命周期。
type App struct {
	name      string
	version   string
	logger    *slog.Logger
	opts      options
	lifecycle *Lifecycle
}

// New 创建一个新的应用程序实例。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{shutdownTimeout: defaultShutdownTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	lc := NewLifecycle(logger)
	for _, hook := range o.hooks {
		lc.Append(hook)
	}

	return &App{
		name:      name,
		version:   o.version,
		logger:    logger,
		opts:      o,
		lifecycle: lc,
	}
}

// Run 启动应用程序，阻塞直到收到 SIGINT/SIGTERM、ctx 被取消或任一服务器异常退出。
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("application starting", "name", a.name, "version", a.version, "pid", os.Getpid())

	if err := a.lifecycle.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(a.opts.servers))
	for _, srv := range a.opts.servers {
		go func(s server.Server) {
			if err := s.Start(ctx); err != nil {
				a.logger.Error("server exited with error", "error", err)
				errCh <- err
				cancel()
			}
		}(srv)
	}

	<-ctx.Done()
	a.logger.Info("shutting down application", "name", a.name)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.opts.shutdownTimeout)
	defer shutdownCancel()

	var firstErr error
	for _, srv := range a.opts.servers {
		if err := srv.Stop(shutdownCtx); err != nil {
			a.logger.Error("server failed to stop", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := a.lifecycle.Stop(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, cleanup := range a.opts.cleanups {
		cleanup()
	}

	select {
	case err := <-errCh:
		if firstErr == nil {
			firstErr = err
		}
	default:
	}

	if firstErr == nil {
		a.logger.Info("application shut down gracefully")
	}
	return firstErr
}
