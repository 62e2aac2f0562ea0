package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mang4123/edumanager-backend-sub000/internal/api/middleware"
	"github.com/mang4123/edumanager-backend-sub000/pkg/jwt"
	"github.com/mang4123/edumanager-backend-sub000/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.ContextUserID)
}

// MustGetRole 从 Gin 上下文中安全提取 role（以持久化资料为准）。
func MustGetRole(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.ContextRole)
}

// MustGetClaims 从 Gin 上下文中提取已校验的 Access Token 声明。
func MustGetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(middleware.ContextClaims)
	if !exists {
		response.Unauthorized(c, response.CodeUnauthenticated, "未认证")
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	if !ok || claims == nil {
		response.Unauthorized(c, response.CodeUnauthenticated, "未认证")
		return nil, false
	}
	return claims, true
}

func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, response.CodeUnauthenticated, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, response.CodeUnauthenticated, "未认证")
		return "", false
	}
	return s, true
}
