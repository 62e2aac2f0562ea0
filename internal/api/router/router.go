package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mang4123/edumanager-backend-sub000/config"
	"github.com/mang4123/edumanager-backend-sub000/internal/api/handler"
	"github.com/mang4123/edumanager-backend-sub000/internal/api/middleware"
	"github.com/mang4123/edumanager-backend-sub000/internal/service"
	"github.com/mang4123/edumanager-backend-sub000/pkg/metrics"
	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
	"github.com/mang4123/edumanager-backend-sub000/pkg/redis"
)

// 认证入口限流：每 IP 每路由
const (
	authRateLimit  = 10
	authRateWindow = time.Minute
	maxBodyBytes   = 1 << 20
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时限流退回进程内实现
func Setup(cfg *config.Config, h *handler.Handler, validator service.TokenValidator, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger, "/health", cfg.Metrics.Path))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics())
	}
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 / 指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// 认证模块（无需认证）
		limited := middleware.RateLimit(rdb, authRateLimit, authRateWindow, logger)
		auth := api.Group("/auth")
		{
			auth.POST("/register", limited, h.Auth.Register)
			auth.POST("/login", limited, h.Auth.Login)
			auth.POST("/refresh", limited, h.Auth.RefreshToken)
		}

		// 注册页邀请预览（公开）
		api.GET("/invites/:token/validate", h.Invite.Validate)

		// 需要认证的路由
		authorized := api.Group("")
		authorized.Use(middleware.JWTAuth(validator))
		{
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.PUT("/profile", h.Profile.Reconcile)

			// 邀请模块
			invites := authorized.Group("/invites")
			{
				teacherOnly := middleware.RoleAuth(profile.RoleTeacher)
				invites.POST("", teacherOnly, h.Invite.Create)
				invites.GET("", teacherOnly, h.Invite.List)
				invites.GET("/export", teacherOnly, h.Invite.Export)
				invites.DELETE("/:id", teacherOnly, h.Invite.Revoke)
				invites.POST("/accept", middleware.RoleAuth(profile.RoleStudent), h.Invite.Accept)
			}

			// 师生关系
			authorized.GET("/enrollments", h.Enrollment.List)
		}
	}

	return r
}
