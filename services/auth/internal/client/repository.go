package client

import (
	"context"

	"github.com/goiam/pkg/dal"
	"github.com/goiam/services/auth/internal/model"
	"gorm.io/gorm"
)

// Repository 客户端仓储接口
type Repository interface {
	dal.Repository[model.OAuthClient]
	FindByClientID(ctx context.Context, clientID string) (*model.OAuthClient, error)
	UpdateStatus(ctx context.Context, id int64, status int8) error
}

// repository 客户端仓储实现
type repository struct {
	*dal.BaseRepository[model.OAuthClient]
}

// NewRepository 创建客户端仓储
func NewRepository() Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepository[model.OAuthClient](),
	}
}

// NewRepositoryWithDB 使用指定DB创建客户端仓储
func NewRepositoryWithDB(db *gorm.DB) Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepositoryWithDB[model.OAuthClient](db),
	}
}

// FindByClientID 根据客户端ID查找
func (r *repository) FindByClientID(ctx context.Context, clientID string) (*model.OAuthClient, error) {
	return r.FindOne(ctx, map[string]interface{}{"client_id": clientID})
}

// UpdateStatus 更新状态
func (r *repository) UpdateStatus(ctx context.Context, id int64, status int8) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{"status": status})
}
