package model

import (
	"strings"

	"github.com/goiam/pkg/dal"
)

// OAuthClient OAuth2客户端模型
type OAuthClient struct {
	dal.Model
	ClientID        string `gorm:"size:100;uniqueIndex;not null" json:"clientId"`
	SecretHash      string `gorm:"size:255;not null" json:"-"`
	GrantTypes      string `gorm:"size:255" json:"grantTypes"` // 逗号分隔存储
	Scopes          string `gorm:"size:500" json:"scopes"`     // 逗号分隔存储
	AccessTokenTTL  int64  `gorm:"default:3600" json:"accessTokenTtl"`
	RefreshTokenTTL int64  `gorm:"default:86400" json:"refreshTokenTtl"`
	RequireConsent  bool   `gorm:"default:false" json:"requireConsent"`
	Status          int8   `gorm:"default:1" json:"status"` // 1:正常 0:禁用
}

// TableName 表名
func (OAuthClient) TableName() string {
	return "oauth_client"
}

// GrantTypeList 解析授权类型列表
func (c *OAuthClient) GrantTypeList() []string {
	return splitList(c.GrantTypes)
}

// ScopeList 解析作用域列表
func (c *OAuthClient) ScopeList() []string {
	return splitList(c.Scopes)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinList 序列化列表为存储格式
func JoinList(items []string) string {
	return strings.Join(items, ",")
}
