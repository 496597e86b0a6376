package auth

import (
	"errors"
	"time"

	"github.com/goiam/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

// FailureReason Token验证失败原因（闭集）
type FailureReason string

// 验证失败原因常量
const (
	FailureNone                 FailureReason = ""
	FailureMalformed            FailureReason = "malformed"
	FailureUnsupportedAlgorithm FailureReason = "unsupported_algorithm"
	FailureSignatureMismatch    FailureReason = "signature_mismatch"
	FailureExpired              FailureReason = "expired"
	FailureMissingClaim         FailureReason = "missing_claim"
)

// Claims JWT声明
type Claims struct {
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// VerifyResult Token验证结果
// Expired 与其他无效状态区分：网关对过期Token返回刷新提示，其余直接拒绝
type VerifyResult struct {
	Valid   bool
	Expired bool
	Claims  *Claims
	Reason  FailureReason
}

// TokenCodec Token编解码器
// 无副作用：验证结果只取决于(token, 当前时间, 密钥)
type TokenCodec struct {
	secret []byte
	issuer string
}

// NewTokenCodec 创建Token编解码器
func NewTokenCodec(cfg *config.JWTConfig) *TokenCodec {
	return &TokenCodec{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
}

// Issue 签发Token
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify 验证Token
// 检查顺序：结构/签名 → 过期 → 必要声明
func (c *TokenCodec) Verify(tokenString string) VerifyResult {
	if tokenString == "" {
		return VerifyResult{Reason: FailureMalformed}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return c.secret, nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return VerifyResult{Reason: FailureMalformed}
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return VerifyResult{Reason: FailureUnsupportedAlgorithm}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return VerifyResult{Reason: FailureSignatureMismatch}
		case errors.Is(err, jwt.ErrTokenExpired):
			// 过期Token的声明仍然返回，便于上层提示刷新
			return VerifyResult{Expired: true, Claims: claims, Reason: FailureExpired}
		case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return VerifyResult{Reason: FailureMissingClaim}
		default:
			return VerifyResult{Reason: FailureMalformed}
		}
	}

	if !token.Valid {
		return VerifyResult{Reason: FailureSignatureMismatch}
	}

	// 必要声明检查
	if claims.Subject == "" {
		return VerifyResult{Reason: FailureMissingClaim}
	}

	return VerifyResult{Valid: true, Claims: claims}
}

// TokenInfo Token信息
type TokenInfo struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// CreateTokenInfo 签发Token并包装为响应信息
func (c *TokenCodec) CreateTokenInfo(claims Claims, ttl time.Duration) (*TokenInfo, error) {
	token, err := c.Issue(claims, ttl)
	if err != nil {
		return nil, err
	}

	return &TokenInfo{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	}, nil
}
