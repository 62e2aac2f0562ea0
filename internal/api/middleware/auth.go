package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mang4123/edumanager-backend-sub000/internal/service"
	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/response"
)

// 上下文键
const (
	ContextUserID  = "user_id"
	ContextRole    = "role"
	ContextClaims  = "claims"
	ContextProfile = "profile"
)

// JWTAuth Bearer 认证中间件
// 校验 Access Token（签名、类型、黑名单、身份存在性），加载或补建资料后注入上下文。
// 任何校验失败均返回 401。
func JWTAuth(validator service.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, response.CodeUnauthenticated, "缺少认证头")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.Unauthorized(c, response.CodeUnauthenticated, "认证头格式无效")
			c.Abort()
			return
		}

		principal, err := validator.Validate(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, pkgerrors.ErrTimeout) {
				response.Unauthorized(c, response.CodeVerifyTimeout, "身份校验超时，请重试")
			} else {
				response.Unauthorized(c, response.CodeUnauthenticated, "Token 无效或已过期")
			}
			c.Abort()
			return
		}

		// 角色以持久化资料为准
		c.Set(ContextUserID, principal.Profile.ID)
		c.Set(ContextRole, principal.Profile.Role)
		c.Set(ContextClaims, principal.Claims)
		c.Set(ContextProfile, principal.Profile)

		c.Next()
	}
}

// RoleAuth 角色权限中间件
// 检查当前用户是否具有指定角色之一
func RoleAuth(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists {
			response.Unauthorized(c, response.CodeUnauthenticated, "未认证")
			c.Abort()
			return
		}

		userRole, _ := role.(string)
		for _, r := range allowedRoles {
			if userRole == r {
				c.Next()
				return
			}
		}

		response.Forbidden(c, response.CodeForbidden, "无权限访问")
		c.Abort()
	}
}
