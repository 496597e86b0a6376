// Package client 管理已注册的OAuth2客户端。
package client

import (
	"context"
	"sync"
	"time"

	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/config"
	"github.com/goiam/pkg/logger"
	"github.com/goiam/pkg/utils"
	"github.com/goiam/services/auth/internal/model"
	"go.uber.org/zap"
)

// RegisteredClient 已注册客户端（请求期只读）
type RegisteredClient struct {
	ClientID        string   `json:"clientId"`
	SecretHash      string   `json:"-"`
	GrantTypes      []string `json:"grantTypes"`
	Scopes          []string `json:"scopes"`
	AccessTokenTTL  int64    `json:"accessTokenTtl"`  // 秒
	RefreshTokenTTL int64    `json:"refreshTokenTtl"` // 秒
	RequireConsent  bool     `json:"requireConsent"`
}

// AccessTokenDuration 访问令牌有效期
func (c *RegisteredClient) AccessTokenDuration() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

// AllowsGrantType 检查是否允许授权类型
func (c *RegisteredClient) AllowsGrantType(grantType string) bool {
	return utils.Contains(c.GrantTypes, grantType)
}

// Registry 客户端注册表接口
type Registry interface {
	FindByClientID(ctx context.Context, clientID string) (*RegisteredClient, error)
	Save(ctx context.Context, client *RegisteredClient) error
}

// MemoryRegistry 内存客户端注册表（测试与单机部署）
type MemoryRegistry struct {
	clients map[string]*RegisteredClient
	mu      sync.RWMutex
}

// NewMemoryRegistry 创建内存注册表
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		clients: make(map[string]*RegisteredClient),
	}
}

// FindByClientID 根据客户端ID查找，不存在时返回(nil, nil)
func (r *MemoryRegistry) FindByClientID(ctx context.Context, clientID string) (*RegisteredClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return nil, nil
	}
	return c, nil
}

// Save 保存客户端
func (r *MemoryRegistry) Save(ctx context.Context, client *RegisteredClient) error {
	r.mu.Lock()
	r.clients[client.ClientID] = client
	r.mu.Unlock()
	return nil
}

// GormRegistry 数据库客户端注册表
type GormRegistry struct {
	repo Repository
}

// NewGormRegistry 创建数据库注册表
func NewGormRegistry() *GormRegistry {
	return &GormRegistry{repo: NewRepository()}
}

// FindByClientID 根据客户端ID查找，禁用客户端视为不存在
func (r *GormRegistry) FindByClientID(ctx context.Context, clientID string) (*RegisteredClient, error) {
	record, err := r.repo.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Status != 1 {
		return nil, nil
	}

	return &RegisteredClient{
		ClientID:        record.ClientID,
		SecretHash:      record.SecretHash,
		GrantTypes:      record.GrantTypeList(),
		Scopes:          record.ScopeList(),
		AccessTokenTTL:  record.AccessTokenTTL,
		RefreshTokenTTL: record.RefreshTokenTTL,
		RequireConsent:  record.RequireConsent,
	}, nil
}

// Save 保存客户端，已存在时更新
func (r *GormRegistry) Save(ctx context.Context, client *RegisteredClient) error {
	existing, err := r.repo.FindByClientID(ctx, client.ClientID)
	if err != nil {
		return err
	}

	record := &model.OAuthClient{
		ClientID:        client.ClientID,
		SecretHash:      client.SecretHash,
		GrantTypes:      model.JoinList(client.GrantTypes),
		Scopes:          model.JoinList(client.Scopes),
		AccessTokenTTL:  client.AccessTokenTTL,
		RefreshTokenTTL: client.RefreshTokenTTL,
		RequireConsent:  client.RequireConsent,
		Status:          1,
	}

	if existing != nil {
		record.ID = existing.ID
		return r.repo.Update(ctx, record)
	}
	return r.repo.Create(ctx, record)
}

// Bootstrap 按配置注册启动客户端，密钥散列后存储
func Bootstrap(ctx context.Context, registry Registry, seeds []config.OAuth2ClientSeed, defaultTTL, defaultRefreshTTL int64) error {
	for _, seed := range seeds {
		secretHash, err := auth.HashPassword(seed.Secret)
		if err != nil {
			return err
		}

		c := &RegisteredClient{
			ClientID:        seed.ClientID,
			SecretHash:      secretHash,
			GrantTypes:      seed.GrantTypes,
			Scopes:          seed.Scopes,
			AccessTokenTTL:  seed.AccessTokenTTL,
			RefreshTokenTTL: seed.RefreshTokenTTL,
			RequireConsent:  seed.RequireConsent,
		}
		if c.AccessTokenTTL <= 0 {
			c.AccessTokenTTL = defaultTTL
		}
		if c.RefreshTokenTTL <= 0 {
			c.RefreshTokenTTL = defaultRefreshTTL
		}
		if len(c.GrantTypes) == 0 {
			c.GrantTypes = []string{"client_credentials"}
		}

		if err := registry.Save(ctx, c); err != nil {
			return err
		}
		logger.Info("已注册OAuth2客户端",
			zap.String("clientId", c.ClientID),
			zap.Strings("scopes", c.Scopes),
		)
	}
	return nil
}
