package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// SemaphoreLimiter 限制同时执行的重计算任务（交叉校验中的蒙特卡洛、LSM）。
// 零值与 nil 均不限制。Release 必须与成功的 Acquire 成对调用。
type SemaphoreLimiter struct {
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// NewSemaphoreLimiter 创建并发上限为 max 的限流器，max <= 0 表示不限制。
func NewSemaphoreLimiter(max int) *SemaphoreLimiter {
	if max <= 0 {
		return &SemaphoreLimiter{}
	}
	return &SemaphoreLimiter{sem: semaphore.NewWeighted(int64(max))}
}

func (l *SemaphoreLimiter) enabled() bool {
	return l != nil && l.sem != nil
}

// Acquire 阻塞直到拿到令牌或 ctx 结束。
func (l *SemaphoreLimiter) Acquire(ctx context.Context) error {
	if !l.enabled() {
		return nil
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.inUse.Add(1)
	return nil
}

// TryAcquire 不等待，拿不到令牌时返回 false。
func (l *SemaphoreLimiter) TryAcquire() bool {
	if !l.enabled() {
		return true
	}
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.inUse.Add(1)
	return true
}

// InUse 返回已占用的令牌数。
func (l *SemaphoreLimiter) InUse() int {
	if !l.enabled() {
		return 0
	}
	return int(l.inUse.Load())
}

// Release 归还一个令牌。
func (l *SemaphoreLimiter) Release() {
	if !l.enabled() {
		return
	}
	l.inUse.Add(-1)
	l.sem.Release(1)
}
