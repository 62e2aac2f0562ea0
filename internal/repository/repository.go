package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Identity   IdentityRepository
	Profile    ProfileRepository
	Invite     InviteRepository
	Enrollment EnrollmentRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:         db,
		Identity:   NewIdentityRepo(db),
		Profile:    NewProfileRepo(db),
		Invite:     NewInviteRepo(db),
		Enrollment: NewEnrollmentRepo(db),
	}
}

// WithTx 返回绑定到事务连接的 Repository 副本
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return NewRepository(tx)
}

// Transaction 在单个数据库事务内执行 fn，fn 返回错误时整体回滚。
// 未绑定数据库（单元测试直接注入 mock 实现）时直接执行 fn。
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}
