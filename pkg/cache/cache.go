// Package cache 提供带过期时间的进程内缓存。
package cache

import (
	"sync"
	"time"
)

// Item 缓存项
type Item struct {
	Value      interface{}
	Expiration int64 // Unix纳秒时间戳，0表示永不过期
}

// Expired 检查是否过期
func (item *Item) Expired() bool {
	if item.Expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > item.Expiration
}

// Cache 内存缓存
type Cache struct {
	items map[string]*Item
	mu    sync.RWMutex

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// New 创建缓存实例，默认5分钟清理一次过期项
func New() *Cache {
	return NewWithCleanup(5 * time.Minute)
}

// NewWithCleanup 创建带定期清理的缓存
func NewWithCleanup(cleanupInterval time.Duration) *Cache {
	c := &Cache{
		items:           make(map[string]*Item),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop()
	}

	return c
}

// cleanupLoop 定期清理过期项
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

// Set 设置缓存项
// 条目整体替换，读取方不会看到部分更新
func (c *Cache) Set(key string, value interface{}, expiration time.Duration) {
	var exp int64
	if expiration > 0 {
		exp = time.Now().Add(expiration).UnixNano()
	}

	c.mu.Lock()
	c.items[key] = &Item{
		Value:      value,
		Expiration: exp,
	}
	c.mu.Unlock()
}

// Get 获取缓存项，过期视为不存在
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || item.Expired() {
		return nil, false
	}
	return item.Value, true
}

// Delete 删除缓存项
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// DeleteExpired 删除所有过期项，返回删除数量
func (c *Cache) DeleteExpired() int {
	now := time.Now().UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, item := range c.items {
		if item.Expiration > 0 && now > item.Expiration {
			delete(c.items, key)
			count++
		}
	}
	return count
}

// Keys 获取所有未过期的key
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	now := time.Now().UnixNano()

	for key, item := range c.items {
		if item.Expiration == 0 || now <= item.Expiration {
			keys = append(keys, key)
		}
	}

	return keys
}

// Count 获取缓存项数量（含未清理的过期项）
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear 清空所有缓存
func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*Item)
	c.mu.Unlock()
}

// Close 停止清理协程
func (c *Cache) Close() {
	if c.cleanupInterval > 0 {
		c.stopOnce.Do(func() {
			close(c.stopCleanup)
		})
	}
}
