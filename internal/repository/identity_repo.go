package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/mang4123/edumanager-backend-sub000/internal/model"
)

// IdentityRepository 身份数据访问接口
type IdentityRepository interface {
	Create(ctx context.Context, identity *model.Identity) error
	GetByID(ctx context.Context, id string) (*model.Identity, error)
	GetByEmail(ctx context.Context, email string) (*model.Identity, error)
}

type identityRepo struct {
	db *gorm.DB
}

// NewIdentityRepo 创建 IdentityRepository 实例
func NewIdentityRepo(db *gorm.DB) IdentityRepository {
	return &identityRepo{db: db}
}

func (r *identityRepo) Create(ctx context.Context, identity *model.Identity) error {
	return r.db.WithContext(ctx).Create(identity).Error
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*model.Identity, error) {
	var identity model.Identity
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&identity).Error
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetByEmail 邮箱不区分大小写
func (r *identityRepo) GetByEmail(ctx context.Context, email string) (*model.Identity, error) {
	var identity model.Identity
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		First(&identity).Error
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
