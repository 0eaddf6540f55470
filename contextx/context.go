// Package contextx 提供了在 context.Context 中注入与提取请求级信息（请求 ID、客户端 IP、定价引擎）的工具函数。
// 使用私有类型作为 Key，防止跨包冲突。
package contextx

import (
	"context"
)

type contextKey int

const (
	RequestIDKey contextKey = iota // 请求唯一标识 Key。
	IPKey                          // 客户端 IP Key。
	EngineKey                      // 当前执行的定价引擎 Key。
)

// AllKeys 返回需要写入日志的全部 Key。
var AllKeys = []contextKey{
	RequestIDKey,
	IPKey,
	EngineKey,
}

// KeyNames 映射 Key 到日志字段名。
var KeyNames = map[contextKey]string{
	RequestIDKey: "request_id",
	IPKey:        "client_ip",
	EngineKey:    "engine",
}

// WithRequestID 将请求 ID 注入到 Context 中。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID 从 Context 中提取请求 ID。
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// WithIP 将客户端 IP 地址注入到 Context 中。
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, IPKey, ip)
}

// GetIP 从 Context 中提取客户端 IP。
func GetIP(ctx context.Context) string {
	return getString(ctx, IPKey)
}

// WithEngine 标记当前调用所在的定价引擎，日志会带上 engine 字段。
func WithEngine(ctx context.Context, engine string) context.Context {
	return context.WithValue(ctx, EngineKey, engine)
}

// GetEngine 从 Context 中提取定价引擎名。
func GetEngine(ctx context.Context) string {
	return getString(ctx, EngineKey)
}

// Fields 返回 Context 中所有非空字段，键为日志字段名。
func Fields(ctx context.Context) map[string]string {
	out := make(map[string]string, len(AllKeys))
	for _, key := range AllKeys {
		if v := getString(ctx, key); v != "" {
			out[KeyNames[key]] = v
		}
	}
	return out
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}
