package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// BigCache 实现了 `Cache` 接口，使用 `allegro/bigcache` 作为底层存储。
// 所有条目共享同一个 TTL。
type BigCache struct {
	cache *bigcache.BigCache
}

// NewBigCache 创建并返回一个新的 BigCache 实例。
// maxMB 为硬性内存上限（MB），0 表示不限制。
func NewBigCache(ttl time.Duration, maxMB int) (*BigCache, error) {
	config := bigcache.DefaultConfig(ttl)
	config.HardMaxCacheSize = maxMB
	config.CleanWindow = max(ttl/2, time.Second)
	config.Verbose = false

	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("init bigcache failed: %w", err)
	}
	return &BigCache{cache: cache}, nil
}

// Get 读取并反序列化到 value（必须为指针）。未命中返回 ErrMiss。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(data, value)
}

// Set 序列化后写入。
func (c *BigCache) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(key, data)
}

// Delete 删除一个或多个键，键不存在不报错。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Reset 清空全部条目，定价参数热更新后调用。
func (c *BigCache) Reset() error {
	return c.cache.Reset()
}

// Len 返回当前条目数。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close 释放后台清理协程。
func (c *BigCache) Close() error {
	return c.cache.Close()
}
