// Package server 提供了 HTTP 服务器的启动与优雅关闭封装。
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// shutdownTimeout 优雅关闭等待在途请求的最长时间。
const shutdownTimeout = 5 * time.Second

// GinServer 封装了标准的 `http.Server`，专门用于运行 Gin 引擎，并提供了优雅的启动和关闭功能。
type GinServer struct {
	server *http.Server
	addr   string
	logger *slog.Logger
}

// GinOption 定义 GinServer 的配置选项。
type GinOption func(*http.Server)

// WithTimeouts 设置读写与空闲超时，零值表示不修改。
func WithTimeouts(read, readHeader, write, idle time.Duration) GinOption {
	return func(s *http.Server) {
		if read > 0 {
			s.ReadTimeout = read
		}
		if readHeader > 0 {
			s.ReadHeaderTimeout = readHeader
		}
		if write > 0 {
			s.WriteTimeout = write
		}
		if idle > 0 {
			s.IdleTimeout = idle
		}
	}
}

// NewGinServer 创建一个新的 Gin 服务器实例。
func NewGinServer(engine *gin.Engine, addr string, logger *slog.Logger, opts ...GinOption) *GinServer {
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return &GinServer{
		server: srv,
		addr:   addr,
		logger: logger,
	}
}

// Addr 返回监听地址。
func (s *GinServer) Addr() string { return s.addr }

// Start 启动 HTTP 服务器。
// 这是一个阻塞操作，上下文取消时触发优雅关闭。
func (s *GinServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在已有监听器上运行，测试中可传入随机端口的监听器。
func (s *GinServer) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting gin server", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gin server stopping due to context cancellation")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Stop 优雅地停止服务器，等待现有请求在超时时间内完成。
func (s *GinServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping gin server gracefully")
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
