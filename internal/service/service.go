package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/mang4123/edumanager-backend-sub000/config"
	"github.com/mang4123/edumanager-backend-sub000/internal/repository"
	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/jwt"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth       AuthService
	Profile    ProfileService
	Invite     InviteService
	Enrollment EnrollmentService
	Token      TokenValidator
}

// TokenBlacklist Token 黑名单（Redis 实现见 pkg/redis）
// 为 nil 时登出仅由客户端丢弃 Token
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	logger *zap.Logger,
) *Service {
	callTimeout := cfg.Database.CallTimeout

	profileSvc := NewProfileService(repo, callTimeout, logger)
	enrollmentSvc := NewEnrollmentService(repo, callTimeout, logger)

	return &Service{
		Auth:       NewAuthService(cfg, repo, jwtMgr, blacklist, profileSvc, enrollmentSvc, logger),
		Profile:    profileSvc,
		Invite:     NewInviteService(cfg, repo, logger),
		Enrollment: enrollmentSvc,
		Token:      NewTokenValidator(cfg.Auth.VerifyTimeout, repo, jwtMgr, blacklist, profileSvc, logger),
	}
}

// ── 超时与重试 ──

// 补偿写入的退避参数
var (
	retryInitialInterval      = 50 * time.Millisecond
	retryMaxInterval          = time.Second
	retryMaxTries        uint = 4
)

// callContext 为单次外部调用附加超时；d<=0 表示不额外限制
func callContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func newRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	return b
}

// retryStorage 按指数退避重试瞬时存储错误（StorageError），其余错误立即返回。
// 超时不重试：单次调用的时限即对调用方承诺的上限。
func retryStorage[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		cctx, cancel := callContext(ctx, timeout)
		defer cancel()

		v, err := op(cctx)
		if err == nil {
			return v, nil
		}
		if pkgerrors.IsTimeout(err) {
			return v, backoff.Permanent(err)
		}
		var se *pkgerrors.StorageError
		if errors.As(err, &se) {
			return v, err
		}
		return v, backoff.Permanent(err)
	},
		backoff.WithBackOff(newRetryBackOff()),
		backoff.WithMaxTries(retryMaxTries),
	)
}
