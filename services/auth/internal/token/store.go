// Package token 实现客户端凭证令牌的签发、存储与生命周期管理。
package token

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/goiam/pkg/database"
	"github.com/redis/go-redis/v9"
)

// IssuedToken 已签发令牌记录
type IssuedToken struct {
	TokenValue    string    `json:"tokenValue"`
	PrincipalName string    `json:"principalName"`
	GrantType     string    `json:"grantType"`
	Scopes        []string  `json:"scopes"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Expired 检查是否过期
func (t *IssuedToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Store 令牌存储接口，以令牌值为查找键
type Store interface {
	Save(ctx context.Context, token *IssuedToken) error
	Find(ctx context.Context, tokenValue string) (*IssuedToken, error)
	Remove(ctx context.Context, tokenValue string) error
	SweepExpired(ctx context.Context) (int, error)
}

// MemoryStore 内存令牌存储
type MemoryStore struct {
	tokens map[string]*IssuedToken
	mu     sync.RWMutex
}

// NewMemoryStore 创建内存令牌存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*IssuedToken),
	}
}

// Save 保存令牌
func (s *MemoryStore) Save(ctx context.Context, token *IssuedToken) error {
	s.mu.Lock()
	s.tokens[token.TokenValue] = token
	s.mu.Unlock()
	return nil
}

// Find 查找令牌，不存在时返回(nil, nil)
func (s *MemoryStore) Find(ctx context.Context, tokenValue string) (*IssuedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[tokenValue]
	if !ok {
		return nil, nil
	}
	return t, nil
}

// Remove 删除令牌，不存在时为空操作
func (s *MemoryStore) Remove(ctx context.Context, tokenValue string) error {
	s.mu.Lock()
	delete(s.tokens, tokenValue)
	s.mu.Unlock()
	return nil
}

// SweepExpired 清理过期令牌，返回清理数量
func (s *MemoryStore) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for value, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, value)
			count++
		}
	}
	return count, nil
}

// Count 当前存储的令牌数量
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// RedisStore 基于Redis的令牌存储
// 写入时设置与令牌有效期等长的TTL，过期由Redis自动清理
type RedisStore struct {
	cache *database.Cache
}

// redisTokenPrefix 令牌key前缀
const redisTokenPrefix = "oauth2:issued"

// NewRedisStore 创建Redis令牌存储
func NewRedisStore() *RedisStore {
	return &RedisStore{
		cache: database.NewCache(redisTokenPrefix),
	}
}

// Save 保存令牌
func (s *RedisStore) Save(ctx context.Context, token *IssuedToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.cache.Set(ctx, token.TokenValue, data, ttl)
}

// Find 查找令牌，不存在时返回(nil, nil)
func (s *RedisStore) Find(ctx context.Context, tokenValue string) (*IssuedToken, error) {
	data, err := s.cache.Get(ctx, tokenValue)
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var t IssuedToken
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Remove 删除令牌，不存在时为空操作
func (s *RedisStore) Remove(ctx context.Context, tokenValue string) error {
	return s.cache.Del(ctx, tokenValue)
}

// SweepExpired Redis按TTL自动过期，无需主动清理
func (s *RedisStore) SweepExpired(ctx context.Context) (int, error) {
	return 0, nil
}
