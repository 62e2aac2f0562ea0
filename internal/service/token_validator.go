package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mang4123/edumanager-backend-sub000/internal/repository"
	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/jwt"
	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
)

// Principal 校验通过的请求主体
type Principal struct {
	Claims  *jwt.Claims
	Profile *profile.Profile
}

// TokenValidator Bearer Token 校验接口
type TokenValidator interface {
	// Validate 校验签名与类型、黑名单、身份存在性（整体受 verifyTimeout 约束），
	// 然后加载资料，缺失时按声明补建。
	Validate(ctx context.Context, token string) (*Principal, error)
}

type tokenValidator struct {
	verifyTimeout time.Duration
	repo          *repository.Repository
	jwtMgr        *jwt.Manager
	blacklist     TokenBlacklist
	profiles      ProfileService
	logger        *zap.Logger
}

// NewTokenValidator 创建 TokenValidator 实例
func NewTokenValidator(
	verifyTimeout time.Duration,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	profiles ProfileService,
	logger *zap.Logger,
) TokenValidator {
	return &tokenValidator{
		verifyTimeout: verifyTimeout,
		repo:          repo,
		jwtMgr:        jwtMgr,
		blacklist:     blacklist,
		profiles:      profiles,
		logger:        logger,
	}
}

func (v *tokenValidator) Validate(ctx context.Context, token string) (*Principal, error) {
	claims, err := v.jwtMgr.ParseToken(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != "access" {
		return nil, ErrTokenInvalid
	}

	if err := v.verify(ctx, claims); err != nil {
		return nil, err
	}

	p, err := v.profiles.Provision(ctx, IdentityFromClaims(claims))
	if err != nil {
		return nil, err
	}

	return &Principal{Claims: claims, Profile: p}, nil
}

// verify 黑名单与身份存在性检查
func (v *tokenValidator) verify(ctx context.Context, claims *jwt.Claims) error {
	vctx, cancel := callContext(ctx, v.verifyTimeout)
	defer cancel()

	if v.blacklist != nil {
		revoked, err := v.blacklist.IsBlacklisted(vctx, claims.ID)
		switch {
		case err != nil && pkgerrors.IsTimeout(err):
			return pkgerrors.ErrTimeout
		case err != nil:
			// Redis 不可用时降级放行
			v.logger.Warn("查询 Token 黑名单失败", zap.Error(err))
		case revoked:
			return ErrTokenInvalid
		}
	}

	if _, err := v.repo.Identity.GetByID(vctx, claims.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTokenInvalid
		}
		if pkgerrors.IsTimeout(err) {
			return pkgerrors.ErrTimeout
		}
		return pkgerrors.Storage("identity.get", err)
	}
	return nil
}

// IdentityFromClaims 将 Access Token 声明还原为身份声明
func IdentityFromClaims(claims *jwt.Claims) profile.Identity {
	return profile.Identity{
		ID:    claims.UserID,
		Email: claims.Email,
		Metadata: profile.Metadata{
			Role:     claims.Role,
			UserType: claims.UserType,
			Name:     claims.Name,
		},
	}
}
