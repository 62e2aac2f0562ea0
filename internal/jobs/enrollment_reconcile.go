package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mang4123/edumanager-backend-sub000/config"
)

// EnrollmentReconciler 为已消费但缺少师生关系的邀请补建关系
type EnrollmentReconciler interface {
	ReconcileAccepted(ctx context.Context, limit int) (int, error)
}

// StartEnrollmentReconcileJob 周期性执行补偿。启动时先执行一轮，之后按间隔执行；
// 每轮有独立超时。返回的通道在任务退出（ctx 取消）后关闭；未启用时立即关闭。
func StartEnrollmentReconcileJob(ctx context.Context, cfg config.InviteConfig, reconciler EnrollmentReconciler, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if !cfg.ReconcileEnabled || reconciler == nil {
		logger.Info("师生关系补偿任务未启用")
		close(done)
		return done
	}

	interval := cfg.ReconcileInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := cfg.ReconcileTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	batch := cfg.ReconcileBatch
	if batch <= 0 {
		batch = 100
	}

	runOnce := func() {
		tickCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		repaired, err := reconciler.ReconcileAccepted(tickCtx, batch)
		if err != nil {
			logger.Warn("师生关系补偿未完全成功", zap.Int("repaired", repaired), zap.Error(err))
			return
		}
		if repaired > 0 {
			logger.Info("师生关系补偿完成", zap.Int("repaired", repaired))
		}
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()

		runOnce()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()

	logger.Info("师生关系补偿任务已启动",
		zap.Duration("interval", interval),
		zap.Int("batch", batch),
	)
	return done
}
