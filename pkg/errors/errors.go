package errors

import (
	"errors"
	"fmt"
)

// 认证失败原因编码（闭集，网关和令牌端点据此区分响应）
const (
	ReasonTokenMissing          = "token_missing"
	ReasonTokenExpired          = "token_expired"
	ReasonTokenMalformed        = "token_malformed"
	ReasonTokenSignatureInvalid = "token_signature_invalid"
	ReasonTokenUnsupported      = "token_unsupported"
	ReasonClientNotFound        = "client_not_found"
	ReasonClientSecretInvalid   = "client_secret_invalid"
	ReasonGrantTypeNotAllowed   = "grant_type_not_allowed"
	ReasonScopeExceeded         = "scope_exceeded"
	ReasonAdminRoleRequired     = "admin_role_required"
	ReasonIssuerTimeout         = "issuer_timeout"
)

// 预定义错误
var (
	ErrNotFound       = New(404, "资源不存在")
	ErrUnauthorized   = New(401, "未授权")
	ErrForbidden      = New(403, "禁止访问")
	ErrBadRequest     = New(400, "请求错误")
	ErrInternalServer = New(500, "服务器内部错误")

	ErrTokenMissing          = NewWithReason(401, "缺少认证Token", ReasonTokenMissing)
	ErrTokenExpired          = NewWithReason(401, "Token已过期", ReasonTokenExpired)
	ErrTokenMalformed        = NewWithReason(401, "Token格式错误", ReasonTokenMalformed)
	ErrTokenSignatureInvalid = NewWithReason(401, "Token签名无效", ReasonTokenSignatureInvalid)
	ErrTokenUnsupported      = NewWithReason(401, "不支持的Token格式", ReasonTokenUnsupported)
	ErrClientNotFound        = NewWithReason(401, "客户端认证失败", ReasonClientNotFound)
	ErrClientSecretInvalid   = NewWithReason(401, "客户端认证失败", ReasonClientSecretInvalid)
	ErrGrantTypeNotAllowed   = NewWithReason(400, "客户端不支持该授权类型", ReasonGrantTypeNotAllowed)
	ErrScopeExceeded         = NewWithReason(400, "请求的作用域超出授权范围", ReasonScopeExceeded)
	ErrAdminRoleRequired     = NewWithReason(403, "需要管理员权限", ReasonAdminRoleRequired)
	ErrIssuerTimeout         = NewWithReason(500, "令牌签发超时", ReasonIssuerTimeout)
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"` // 失败原因编码
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 解包错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMessage 返回替换了消息的副本
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Reason:  e.Reason,
		Err:     e,
	}
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewWithReason 创建带原因编码的错误
func NewWithReason(code int, message, reason string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Reason:  reason,
	}
}

// Wrap 包装错误
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is 检查是否为指定错误
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 类型转换错误
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 500
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// GetReason 获取失败原因编码
func GetReason(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

// BadRequest 创建请求错误
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    400,
		Message: message,
	}
}

// Unauthorized 创建未授权错误
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "未授权"
	}
	return &AppError{
		Code:    401,
		Message: message,
	}
}

// Forbidden 创建禁止访问错误
func Forbidden(message string) *AppError {
	if message == "" {
		message = "禁止访问"
	}
	return &AppError{
		Code:    403,
		Message: message,
	}
}

// Internal 创建内部错误
func Internal(message string) *AppError {
	if message == "" {
		message = "服务器内部错误"
	}
	return &AppError{
		Code:    500,
		Message: message,
	}
}
