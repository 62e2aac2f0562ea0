package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mang4123/edumanager-backend-sub000/config"
	"github.com/mang4123/edumanager-backend-sub000/internal/api/handler"
	"github.com/mang4123/edumanager-backend-sub000/internal/api/router"
	"github.com/mang4123/edumanager-backend-sub000/internal/jobs"
	"github.com/mang4123/edumanager-backend-sub000/internal/model"
	"github.com/mang4123/edumanager-backend-sub000/internal/repository"
	"github.com/mang4123/edumanager-backend-sub000/internal/service"
	"github.com/mang4123/edumanager-backend-sub000/pkg/database"
	"github.com/mang4123/edumanager-backend-sub000/pkg/jwt"
	applogger "github.com/mang4123/edumanager-backend-sub000/pkg/logger"
	"github.com/mang4123/edumanager-backend-sub000/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./config/config.yaml）")
	rollback := flag.Int("rollback", 0, "回滚最近 N 个数据库迁移后退出（仅 postgres）")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3.1 建表：postgres 走 SQL 迁移，sqlite 开发模式走 AutoMigrate
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if *rollback > 0 {
		if cfg.Database.Driver != "postgres" {
			logger.Fatal("回滚仅支持 postgres")
		}
		mg, err := database.NewMigrator(sqlDB, logger)
		if err != nil {
			logger.Fatal("初始化迁移失败", zap.Error(err))
		}
		if err := mg.Rollback(*rollback); err != nil {
			logger.Fatal("数据库回滚失败", zap.Error(err))
		}
		return
	}
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(model.All()...); err != nil {
			logger.Fatal("AutoMigrate 失败", zap.Error(err))
		}
	} else if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var blacklist service.TokenBlacklist
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Token 黑名单不可用，限流退回进程内实现", zap.Error(err))
		rdb = nil
	} else {
		blacklist = rdb
	}

	// 5. 初始化 JWT 管理器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, jwtMgr, blacklist, logger)
	h := handler.NewHandler(svc)

	// 7. 初始化路由
	engine := router.Setup(cfg, h, svc.Token, rdb, logger)

	// 8. 后台任务：补建已消费邀请缺失的师生关系
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	jobDone := jobs.StartEnrollmentReconcileJob(ctx, cfg.Invite, svc.Enrollment, logger)

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	<-ctx.Done()
	logger.Info("收到关闭信号，开始优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	select {
	case <-jobDone:
	case <-shutdownCtx.Done():
		logger.Warn("补偿任务未在时限内退出")
	}

	// 关闭数据库连接
	_ = sqlDB.Close()

	// 关闭 Redis 连接
	if rdb != nil {
		_ = rdb.Close()
	}

	logger.Info("服务器已关闭")
}
