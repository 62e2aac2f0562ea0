package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mang4123/edumanager-backend-sub000/internal/model"
	"github.com/mang4123/edumanager-backend-sub000/internal/repository"
	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/metrics"
	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
)

// ── 用户资料模块业务错误 ──

var ErrProfileNotFound = errors.New("用户资料不存在")

// 资料创建来源（指标标签）
const (
	provisionSourceReconcile = "reconcile"
	provisionSourceToken     = "token"
)

// ProfileService 用户资料业务接口
type ProfileService interface {
	Get(ctx context.Context, id string) (*profile.Profile, error)
	// Reconcile 不存在则创建，已存在则原样返回持久化记录。
	// 并发对账导致的唯一冲突视为成功。
	Reconcile(ctx context.Context, p profile.Profile) (*profile.Profile, error)
	// Provision 按 Token 声明补建缺失资料（Bearer 校验路径）
	Provision(ctx context.Context, identity profile.Identity) (*profile.Profile, error)
}

type profileService struct {
	repo        *repository.Repository
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewProfileService 创建 ProfileService 实例
func NewProfileService(repo *repository.Repository, callTimeout time.Duration, logger *zap.Logger) ProfileService {
	return &profileService{repo: repo, callTimeout: callTimeout, logger: logger}
}

// ────────────────────── Get ──────────────────────

func (s *profileService) Get(ctx context.Context, id string) (*profile.Profile, error) {
	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()

	row, err := s.repo.Profile.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, pkgerrors.Storage("profile.get", err)
	}
	p := toProfile(row)
	return &p, nil
}

// ────────────────────── Reconcile ──────────────────────

func (s *profileService) Reconcile(ctx context.Context, p profile.Profile) (*profile.Profile, error) {
	return s.ensure(ctx, p, provisionSourceReconcile)
}

// ────────────────────── Provision ──────────────────────

func (s *profileService) Provision(ctx context.Context, identity profile.Identity) (*profile.Profile, error) {
	existing, err := s.Get(ctx, identity.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	// 默认角色兜底：声明中没有角色信息时按 teacher 创建
	return s.ensure(ctx, profile.Resolve(identity), provisionSourceToken)
}

func (s *profileService) ensure(ctx context.Context, p profile.Profile, source string) (*profile.Profile, error) {
	if !profile.IsValidRole(p.Role) {
		p.Role = profile.DefaultRole
	}
	row := toProfileModel(p)

	created, err := retryStorage(ctx, s.callTimeout, func(cctx context.Context) (bool, error) {
		created, err := s.repo.Profile.CreateIfMissing(cctx, row)
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return false, nil
			}
			return false, pkgerrors.Storage("profile.create", err)
		}
		return created, nil
	})
	if err != nil {
		s.logger.Error("创建用户资料失败", zap.String("id", p.ID), zap.Error(err))
		return nil, err
	}

	if created {
		metrics.ProfilesProvisioned.WithLabelValues(source).Inc()
		s.logger.Info("已创建用户资料",
			zap.String("id", p.ID),
			zap.String("role", p.Role),
			zap.String("source", source),
		)
	}

	return s.Get(ctx, p.ID)
}

// ── 转换 ──

func toProfile(row *model.Profile) profile.Profile {
	p := profile.Profile{
		ID:    row.ID,
		Name:  row.Name,
		Email: row.Email,
		Role:  row.Role,
	}
	if row.Phone != nil {
		p.Phone = *row.Phone
	}
	return p
}

func toProfileModel(p profile.Profile) *model.Profile {
	row := &model.Profile{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
		Role:  p.Role,
	}
	if p.Phone != "" {
		phone := p.Phone
		row.Phone = &phone
	}
	return row
}
