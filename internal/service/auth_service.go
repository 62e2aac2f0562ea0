package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mang4123/edumanager-backend-sub000/config"
	"github.com/mang4123/edumanager-backend-sub000/internal/dto"
	"github.com/mang4123/edumanager-backend-sub000/internal/model"
	"github.com/mang4123/edumanager-backend-sub000/internal/repository"
	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/jwt"
	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
)

// ── 认证模块业务错误 ──

var (
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrEmailTaken         = errors.New("该邮箱已注册")
	ErrTokenInvalid       = errors.New("登录状态无效，请重新登录")
	ErrInvalidRole        = errors.New("角色必须为 teacher 或 student")
)

// AuthService 认证业务接口
type AuthService interface {
	// Register 注册身份并创建资料；携带邀请的学生注册后立即接受邀请
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.TokenResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	Logout(ctx context.Context, claims *jwt.Claims) error
	GetCurrentUser(ctx context.Context, userID string) (*dto.UserResponse, error)
}

type authService struct {
	cfg         *config.Config
	repo        *repository.Repository
	jwtMgr      *jwt.Manager
	blacklist   TokenBlacklist
	profiles    ProfileService
	enrollments EnrollmentService
	logger      *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	profiles ProfileService,
	enrollments EnrollmentService,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:         cfg,
		repo:        repo,
		jwtMgr:      jwtMgr,
		blacklist:   blacklist,
		profiles:    profiles,
		enrollments: enrollments,
		logger:      logger,
	}
}

// ────────────────────── Register ──────────────────────

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.TokenResponse, error) {
	if !profile.IsValidRole(req.Role) {
		return nil, ErrInvalidRole
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	// 1. 预检邀请，避免创建账号后才发现邀请不可用
	acceptInvite := req.Invite != "" && req.Role == profile.RoleStudent
	if acceptInvite {
		if err := s.precheckInvite(ctx, req.Invite); err != nil {
			return nil, err
		}
	}

	// 2. 邮箱唯一
	cctx, cancel := callContext(ctx, s.cfg.Database.CallTimeout)
	defer cancel()

	if _, err := s.repo.Identity.GetByEmail(cctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Storage("identity.get", err)
	}

	// 3. 创建身份（角色显式写入元数据）
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	identity := &model.Identity{
		Email:        email,
		PasswordHash: string(hash),
		Metadata: model.Metadata{
			Role:     req.Role,
			UserType: req.Role,
			Name:     strings.TrimSpace(req.Name),
			Phone:    strings.TrimSpace(req.Phone),
		},
	}
	if err := s.repo.Identity.Create(cctx, identity); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		s.logger.Error("创建身份失败", zap.Error(err))
		return nil, pkgerrors.Storage("identity.create", err)
	}

	// 4. 创建资料：失败只记录，账号已存在，登录与 Token 校验时的 Provision 会补建
	desired := profile.Resolve(identity.Claims())
	p, err := s.profiles.Reconcile(ctx, desired)
	if err != nil {
		s.logger.Warn("注册后创建资料失败，使用声明推导的资料",
			zap.String("user_id", identity.ID),
			zap.Error(err),
		)
		p = &desired
	}

	resp, err := s.issueTokens(identity, p)
	if err != nil {
		return nil, err
	}

	s.logger.Info("用户注册成功",
		zap.String("user_id", identity.ID),
		zap.String("role", p.Role),
	)

	// 5. 接受邀请：失败不回滚注册，学生可在登录后重试
	if acceptInvite {
		enrollment, err := s.enrollments.Accept(ctx, req.Invite, identity.ID)
		if err != nil {
			s.logger.Warn("注册后接受邀请失败", zap.String("user_id", identity.ID), zap.Error(err))
		} else {
			resp.Enrollment = enrollment
		}
	}

	return resp, nil
}

func (s *authService) precheckInvite(ctx context.Context, token string) error {
	cctx, cancel := callContext(ctx, s.cfg.Database.CallTimeout)
	defer cancel()

	invite, err := s.repo.Invite.GetByToken(cctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInviteNotFound
		}
		return pkgerrors.Storage("invite.get", err)
	}
	switch invite.DisplayStatus(time.Now()) {
	case model.InviteStatusExpired:
		return ErrInviteExpired
	case model.InviteStatusAccepted:
		return ErrInviteAlreadyAccepted
	}
	return nil
}

// ────────────────────── Login ──────────────────────

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	cctx, cancel := callContext(ctx, s.cfg.Database.CallTimeout)
	defer cancel()

	// 1. 查询身份
	identity, err := s.repo.Identity.GetByEmail(cctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询身份失败", zap.Error(err))
		return nil, pkgerrors.Storage("identity.get", err)
	}

	// 2. 验证密码 (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 首次登录补建资料
	p, err := s.profiles.Provision(ctx, identity.Claims())
	if err != nil {
		return nil, err
	}

	return s.issueTokens(identity, p)
}

// ────────────────────── RefreshToken ──────────────────────

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	claims, err := s.jwtMgr.ParseToken(refreshToken)
	if err != nil || claims.TokenType != "refresh" {
		return nil, ErrTokenInvalid
	}

	if s.blacklist != nil {
		revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("查询 Token 黑名单失败", zap.Error(err))
		} else if revoked {
			return nil, ErrTokenInvalid
		}
	}

	cctx, cancel := callContext(ctx, s.cfg.Database.CallTimeout)
	defer cancel()

	identity, err := s.repo.Identity.GetByID(cctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, pkgerrors.Storage("identity.get", err)
	}

	p, err := s.profiles.Provision(ctx, identity.Claims())
	if err != nil {
		return nil, err
	}

	resp, err := s.issueTokens(identity, p)
	if err != nil {
		return nil, err
	}

	// 轮换：旧 Refresh Token 作废
	if s.blacklist != nil {
		if err := s.blacklist.BlacklistToken(ctx, claims.ID, claims.RemainingTTL()); err != nil {
			s.logger.Warn("旧 RefreshToken 加入黑名单失败", zap.Error(err))
		}
	}

	return resp, nil
}

// ────────────────────── Logout ──────────────────────

func (s *authService) Logout(ctx context.Context, claims *jwt.Claims) error {
	if s.blacklist == nil || claims == nil {
		return nil
	}
	if err := s.blacklist.BlacklistToken(ctx, claims.ID, claims.RemainingTTL()); err != nil {
		s.logger.Error("Token 加入黑名单失败", zap.String("user_id", claims.UserID), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── GetCurrentUser ──────────────────────

func (s *authService) GetCurrentUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	user := toUserResponse(p)
	return &user, nil
}

// ── 辅助 ──

func (s *authService) issueTokens(identity *model.Identity, p *profile.Profile) (*dto.TokenResponse, error) {
	sub := jwt.Subject{
		UserID:   identity.ID,
		Email:    identity.Email,
		Role:     identity.Metadata.Role,
		UserType: identity.Metadata.UserType,
		Name:     identity.Metadata.Name,
	}

	accessToken, err := s.jwtMgr.GenerateAccessToken(sub)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}
	refreshToken, err := s.jwtMgr.GenerateRefreshToken(sub)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		User:         toUserResponse(p),
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtMgr.AccessTokenTTL().Seconds()),
	}, nil
}

func toUserResponse(p *profile.Profile) dto.UserResponse {
	return dto.UserResponse{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
		Phone: p.Phone,
		Role:  p.Role,
	}
}
