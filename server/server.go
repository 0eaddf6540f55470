package server

import "context"

// Server 定义了服务器生命周期契约，app 包据此统一管理启动与关闭。
type Server interface {
	// Start 阻塞运行直到上下文取消或出错。
	Start(ctx context.Context) error
	// Stop 优雅关闭，等待在途请求完成。
	Stop(ctx context.Context) error
}
