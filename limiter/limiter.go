// Package limiter 提供了本地令牌桶限流与并发信号量限流。
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter 是一个全局令牌桶限流器，忽略 key。
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter 创建令牌桶限流器。r 为每秒令牌数，b 为桶容量。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{limiter: rate.NewLimiter(r, b)}
}

// Allow 尝试取一个令牌。
func (l *LocalLimiter) Allow(context.Context, string) (bool, error) {
	return l.limiter.Allow(), nil
}

// KeyedLimiter 为每个 key（通常是客户端 IP）维护独立的令牌桶，
// 超过 idle 未访问的桶会在下一次清理时移除。
type KeyedLimiter struct {
	mu      sync.Mutex
	r       rate.Limit
	b       int
	idle    time.Duration
	buckets map[string]*bucket
	lastGC  time.Time
	now     func() time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewKeyedLimiter 创建按 key 限流的限流器。idle <= 0 时默认 10 分钟。
func NewKeyedLimiter(r rate.Limit, b int, idle time.Duration) *KeyedLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &KeyedLimiter{
		r:       r,
		b:       b,
		idle:    idle,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow 检查 key 对应的令牌桶。
func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > l.idle {
		for k, bk := range l.buckets {
			if now.Sub(bk.seen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}

	bk, ok := l.buckets[key]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(l.r, l.b)}
		l.buckets[key] = bk
	}
	bk.seen = now
	return bk.limiter.AllowN(now, 1), nil
}

// Len 返回当前跟踪的 key 数。
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
