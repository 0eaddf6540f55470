package app

import (
	"time"

	"github.com/wyfcoding/pricer/server"
)

// Option 是一个函数类型，用于配置应用程序选项。
type Option func(*options)

type options struct {
	version         string
	servers         []server.Server // 应用程序管理的服务器列表
	cleanups        []func()        // 关闭时按注册顺序执行的清理函数
	hooks           []Hook
	shutdownTimeout time.Duration
}

// WithVersion 设置版本号，用于启动日志。
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithServer 添加一个或多个服务器，启动时并行运行，关闭时依次停止。
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithCleanup 添加一个清理函数，在服务器与钩子都停止后执行。
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		if cleanup != nil {
			o.cleanups = append(o.cleanups, cleanup)
		}
	}
}

// WithHook 添加一个生命周期钩子。
func WithHook(hook Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hook)
	}
}

// WithShutdownTimeout 设置优雅关闭的超时时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}
