package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mang4123/edumanager-backend-sub000/internal/model"
)

// ProfileRepository 用户资料数据访问接口
type ProfileRepository interface {
	// CreateIfMissing INSERT ... ON CONFLICT DO NOTHING；created=false 表示记录已存在
	CreateIfMissing(ctx context.Context, profile *model.Profile) (created bool, err error)
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	Update(ctx context.Context, profile *model.Profile) error
}

type profileRepo struct {
	db *gorm.DB
}

// NewProfileRepo 创建 ProfileRepository 实例
func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) CreateIfMissing(ctx context.Context, profile *model.Profile) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(profile)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *profileRepo) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepo) Update(ctx context.Context, profile *model.Profile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}
