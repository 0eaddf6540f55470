// Package cache 提供了进程内缓存抽象及基于 allegro/bigcache 的实现，用于缓存确定性的定价结果。
package cache

import (
	"context"
	"errors"
)

// ErrMiss 表示键不存在或已过期。
var ErrMiss = errors.New("cache miss")

// Cache 定义缓存接口。值以 JSON 序列化存储。
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
	Reset() error
	Len() int
	Close() error
}
