package response

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Response 统一响应结构
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Success   bool        `json:"success"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// 响应码定义
const (
	CodeSuccess      = 0
	CodeError        = 1
	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

// 响应消息定义
const (
	MsgSuccess      = "success"
	MsgUnauthorized = "unauthorized"
	MsgForbidden    = "forbidden"
	MsgNotFound     = "not found"
	MsgServerError  = "server error"
)

// newResponse 构建响应体
func newResponse(code int, message string, data interface{}) Response {
	return Response{
		Code:      code,
		Message:   message,
		Success:   code == CodeSuccess,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// Success 成功响应
func Success(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusOK).JSON(newResponse(CodeSuccess, MsgSuccess, data))
}

// SuccessWithMessage 成功响应(带消息)
func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(http.StatusOK).JSON(newResponse(CodeSuccess, message, data))
}

// Error 错误响应（HTTP状态码与业务码一致）
func Error(c *fiber.Ctx, code int, message string) error {
	status := code
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	return c.Status(status).JSON(newResponse(code, message, nil))
}

// ErrorWithData 错误响应(带数据)
func ErrorWithData(c *fiber.Ctx, code int, message string, data interface{}) error {
	status := code
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	return c.Status(status).JSON(newResponse(code, message, data))
}

// BadRequest 请求错误
func BadRequest(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(newResponse(CodeBadRequest, message, nil))
}

// Unauthorized 未授权
func Unauthorized(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgUnauthorized
	}
	return c.Status(http.StatusUnauthorized).JSON(newResponse(CodeUnauthorized, message, nil))
}

// Forbidden 禁止访问
func Forbidden(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgForbidden
	}
	return c.Status(http.StatusForbidden).JSON(newResponse(CodeForbidden, message, nil))
}

// NotFound 未找到
func NotFound(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgNotFound
	}
	return c.Status(http.StatusNotFound).JSON(newResponse(CodeNotFound, message, nil))
}

// ServerError 服务器错误
func ServerError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgServerError
	}
	return c.Status(http.StatusInternalServerError).JSON(newResponse(CodeServerError, message, nil))
}
