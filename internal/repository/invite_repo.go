package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mang4123/edumanager-backend-sub000/internal/model"
)

// InviteRepository 邀请数据访问接口
type InviteRepository interface {
	Create(ctx context.Context, invite *model.Invite) error
	GetByID(ctx context.Context, id string) (*model.Invite, error)
	GetByToken(ctx context.Context, token string) (*model.Invite, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]model.Invite, error)
	// MarkAccepted 条件更新（CAS）：仅当邀请仍为 pending 时置为 accepted。
	// 返回 false 表示零行受影响，即已有其他请求先完成消费（或邀请已被撤销）。
	MarkAccepted(ctx context.Context, token, studentID string, usedAt time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	// ListAcceptedWithoutEnrollment 已消费但缺少 active 关系记录的邀请（补偿任务使用）
	ListAcceptedWithoutEnrollment(ctx context.Context, limit int) ([]model.Invite, error)
}

type inviteRepo struct {
	db *gorm.DB
}

// NewInviteRepo 创建 InviteRepository 实例
func NewInviteRepo(db *gorm.DB) InviteRepository {
	return &inviteRepo{db: db}
}

func (r *inviteRepo) Create(ctx context.Context, invite *model.Invite) error {
	return r.db.WithContext(ctx).Create(invite).Error
}

func (r *inviteRepo) GetByID(ctx context.Context, id string) (*model.Invite, error) {
	var invite model.Invite
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&invite).Error
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *inviteRepo) GetByToken(ctx context.Context, token string) (*model.Invite, error) {
	var invite model.Invite
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&invite).Error
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *inviteRepo) ListByTeacher(ctx context.Context, teacherID string) ([]model.Invite, error) {
	var invites []model.Invite
	err := r.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("created_at DESC").
		Find(&invites).Error
	return invites, err
}

func (r *inviteRepo) MarkAccepted(ctx context.Context, token, studentID string, usedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Invite{}).
		Where("token = ? AND status = ?", token, model.InviteStatusPending).
		Updates(map[string]interface{}{
			"status":      model.InviteStatusAccepted,
			"used_at":     usedAt,
			"accepted_by": studentID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Delete 物理删除邀请；不级联处理已创建的关系记录
func (r *inviteRepo) Delete(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.Invite{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *inviteRepo) ListAcceptedWithoutEnrollment(ctx context.Context, limit int) ([]model.Invite, error) {
	var invites []model.Invite
	err := r.db.WithContext(ctx).
		Where("status = ? AND accepted_by IS NOT NULL", model.InviteStatusAccepted).
		Where(`NOT EXISTS (
			SELECT 1 FROM enrollments e
			WHERE e.teacher_id = invites.teacher_id
			  AND e.student_id = invites.accepted_by
			  AND e.active = ?)`, true).
		Order("used_at ASC").
		Limit(limit).
		Find(&invites).Error
	return invites, err
}
