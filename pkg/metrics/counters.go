// Package metrics 提供网关认证指标的原子计数器。
// 计数器单调递增，除显式Reset外不会减少。
package metrics

import (
	"sync/atomic"
	"time"
)

// AuthCounters 认证指标计数器
// 以共享引用传递，所有操作并发安全
type AuthCounters struct {
	authSuccess  atomic.Int64
	authFailure  atomic.Int64
	rateLimitHit atomic.Int64
	resetAt      atomic.Int64 // Unix毫秒
}

// NewAuthCounters 创建计数器
func NewAuthCounters() *AuthCounters {
	c := &AuthCounters{}
	c.resetAt.Store(time.Now().UnixMilli())
	return c
}

// RecordAuthSuccess 记录认证成功
func (c *AuthCounters) RecordAuthSuccess() {
	c.authSuccess.Add(1)
}

// RecordAuthFailure 记录认证失败
func (c *AuthCounters) RecordAuthFailure() {
	c.authFailure.Add(1)
}

// RecordRateLimitHit 记录限流触发
func (c *AuthCounters) RecordRateLimitHit() {
	c.rateLimitHit.Add(1)
}

// Reset 重置所有计数器
// 重置对后续读取立即可见
func (c *AuthCounters) Reset() {
	c.authSuccess.Store(0)
	c.authFailure.Store(0)
	c.rateLimitHit.Store(0)
	c.resetAt.Store(time.Now().UnixMilli())
}

// Snapshot 计数器快照
type Snapshot struct {
	AuthSuccess  int64 `json:"authSuccess"`
	AuthFailure  int64 `json:"authFailure"`
	RateLimitHit int64 `json:"rateLimitHit"`
	ResetAt      int64 `json:"resetAt"`
}

// Snapshot 读取当前计数
func (c *AuthCounters) Snapshot() Snapshot {
	return Snapshot{
		AuthSuccess:  c.authSuccess.Load(),
		AuthFailure:  c.authFailure.Load(),
		RateLimitHit: c.rateLimitHit.Load(),
		ResetAt:      c.resetAt.Load(),
	}
}
