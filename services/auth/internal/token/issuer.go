package token

import (
	"context"
	"time"

	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/errors"
	"github.com/goiam/pkg/logger"
	"github.com/goiam/pkg/oauth2"
	"github.com/goiam/services/auth/internal/client"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// GrantClientCredentials 客户端凭证授权类型
const GrantClientCredentials = "client_credentials"

// IssueResult 令牌签发结果
type IssueResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Issuer 客户端凭证令牌签发器
type Issuer struct {
	registry client.Registry
	codec    *auth.TokenCodec
	store    Store
}

// NewIssuer 创建签发器
func NewIssuer(registry client.Registry, codec *auth.TokenCodec, store Store) *Issuer {
	return &Issuer{
		registry: registry,
		codec:    codec,
		store:    store,
	}
}

// Issue 签发客户端凭证令牌
// 校验顺序：客户端存在 → 密钥 → 授权类型 → scope范围
func (i *Issuer) Issue(ctx context.Context, clientID, clientSecret, requestedScope string) (*IssueResult, error) {
	c, err := i.registry.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, errors.Wrap(err, 500, "查询客户端失败")
	}
	// 客户端不存在与密钥错误返回同样的消息，不暴露客户端是否注册
	if c == nil {
		return nil, errors.ErrClientNotFound
	}

	if !auth.CheckPassword(clientSecret, c.SecretHash) {
		return nil, errors.ErrClientSecretInvalid
	}

	if !c.AllowsGrantType(GrantClientCredentials) {
		return nil, errors.ErrGrantTypeNotAllowed
	}

	scopes, err := oauth2.ParseScopes(requestedScope)
	if err != nil {
		return nil, err
	}

	// 未请求scope时授予客户端全部scope
	if len(scopes) == 0 {
		scopes = c.Scopes
	} else if rejected := excludedScopes(scopes, c.Scopes); len(rejected) > 0 {
		return nil, errors.ErrScopeExceeded.WithMessage(
			"请求的作用域超出授权范围: " + oauth2.FormatScopes(rejected))
	}

	now := time.Now()
	ttl := c.AccessTokenDuration()

	tokenValue, err := i.codec.Issue(auth.Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: c.ClientID,
		},
	}, ttl)
	if err != nil {
		return nil, errors.Wrap(err, 500, "令牌签发失败")
	}

	issued := &IssuedToken{
		TokenValue:    tokenValue,
		PrincipalName: c.ClientID,
		GrantType:     GrantClientCredentials,
		Scopes:        scopes,
		IssuedAt:      now,
		ExpiresAt:     now.Add(ttl),
	}
	if err := i.store.Save(ctx, issued); err != nil {
		return nil, errors.Wrap(err, 500, "令牌持久化失败")
	}

	logger.Info("签发客户端令牌",
		zap.String("clientId", c.ClientID),
		zap.Strings("scopes", scopes),
		zap.Int64("expiresIn", int64(ttl.Seconds())),
	)

	return &IssueResult{
		AccessToken: tokenValue,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		Scope:       oauth2.FormatScopes(scopes),
	}, nil
}

// Introspect 查询令牌状态
// 未找到或已过期均返回active=false，过期令牌顺带清除
func (i *Issuer) Introspect(ctx context.Context, tokenValue string) (*oauth2.Introspection, error) {
	t, err := i.store.Find(ctx, tokenValue)
	if err != nil {
		return nil, errors.Wrap(err, 500, "查询令牌失败")
	}
	if t == nil {
		return &oauth2.Introspection{Active: false}, nil
	}

	if t.Expired(time.Now()) {
		_ = i.store.Remove(ctx, tokenValue)
		return &oauth2.Introspection{Active: false}, nil
	}

	return &oauth2.Introspection{
		Active:    true,
		ClientID:  t.PrincipalName,
		Scope:     oauth2.FormatScopes(t.Scopes),
		TokenType: "Bearer",
		ExpiresAt: t.ExpiresAt.Unix(),
		IssuedAt:  t.IssuedAt.Unix(),
	}, nil
}

// Revoke 撤销令牌
// 幂等：撤销未知令牌同样成功
func (i *Issuer) Revoke(ctx context.Context, clientID, clientSecret, tokenValue string) error {
	c, err := i.registry.FindByClientID(ctx, clientID)
	if err != nil {
		return errors.Wrap(err, 500, "查询客户端失败")
	}
	if c == nil {
		return errors.ErrClientNotFound
	}
	if !auth.CheckPassword(clientSecret, c.SecretHash) {
		return errors.ErrClientSecretInvalid
	}

	t, err := i.store.Find(ctx, tokenValue)
	if err != nil {
		return errors.Wrap(err, 500, "查询令牌失败")
	}
	// 未知令牌视为已撤销；他人令牌不可撤销但同样静默返回
	if t == nil || t.PrincipalName != c.ClientID {
		return nil
	}

	if err := i.store.Remove(ctx, tokenValue); err != nil {
		return errors.Wrap(err, 500, "撤销令牌失败")
	}

	logger.Info("撤销客户端令牌", zap.String("clientId", c.ClientID))
	return nil
}

// excludedScopes 返回requested中不在allowed内的scope
func excludedScopes(requested, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		set[s] = struct{}{}
	}

	var rejected []string
	for _, s := range requested {
		if _, ok := set[s]; !ok {
			rejected = append(rejected, s)
		}
	}
	return rejected
}
