package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 业务错误码：1xxxx 按模块分段，5xxxx 为服务端错误
const (
	CodeValidation      = 10001
	CodeUnauthenticated = 10002
	CodeForbidden       = 10003
	CodeRateLimited     = 10004
	CodeBodyTooLarge    = 10005
	CodeVerifyTimeout   = 10006

	CodeInvalidCredentials = 11001
	CodeEmailTaken         = 11002
	CodeInvalidRole        = 11003
	CodeRefreshInvalid     = 11004

	CodeProfileNotFound = 12001

	CodeInviteNotFound        = 13001
	CodeInviteExpired         = 13002
	CodeInviteAlreadyAccepted = 13003
	CodeExportFailed          = 13004

	CodeTimeout  = 50400
	CodeInternal = 50000
)

// Body 统一响应体
// 成功：{code:0, message:"success", data}
// 失败：{error:true, code, message, statusCode}
type Body struct {
	Error      bool        `json:"error,omitempty"`
	Code       int         `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Body{Message: "success", Data: data})
}

// OK 200
func OK(c *gin.Context, data interface{}) { success(c, http.StatusOK, data) }

// Created 201
func Created(c *gin.Context, data interface{}) { success(c, http.StatusCreated, data) }

// Error 错误响应的唯一出口；已写出响应的请求同时被中止
func Error(c *gin.Context, httpStatus int, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, Body{
		Error:      true,
		Code:       code,
		Message:    message,
		StatusCode: httpStatus,
	})
}

func BadRequest(c *gin.Context, code int, message string) {
	Error(c, http.StatusBadRequest, code, message)
}

func Unauthorized(c *gin.Context, code int, message string) {
	Error(c, http.StatusUnauthorized, code, message)
}

func Forbidden(c *gin.Context, code int, message string) {
	Error(c, http.StatusForbidden, code, message)
}

func NotFound(c *gin.Context, code int, message string) {
	Error(c, http.StatusNotFound, code, message)
}

func Conflict(c *gin.Context, code int, message string) {
	Error(c, http.StatusConflict, code, message)
}

// Gone 410：资源曾存在但已失效（过期邀请）
func Gone(c *gin.Context, code int, message string) {
	Error(c, http.StatusGone, code, message)
}

// PayloadTooLarge 413
func PayloadTooLarge(c *gin.Context) {
	Error(c, http.StatusRequestEntityTooLarge, CodeBodyTooLarge, "请求体过大")
}

// TooManyRequests 429
func TooManyRequests(c *gin.Context) {
	Error(c, http.StatusTooManyRequests, CodeRateLimited, "请求过于频繁，请稍后再试")
}

// GatewayTimeout 504 外部依赖超时
func GatewayTimeout(c *gin.Context) {
	Error(c, http.StatusGatewayTimeout, CodeTimeout, "外部服务响应超时，请稍后重试")
}

// InternalError 500
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternal, "服务器内部错误")
}
