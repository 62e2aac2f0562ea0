package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mang4123/edumanager-backend-sub000/internal/model"
)

// EnrollmentRepository 师生关系数据访问接口
type EnrollmentRepository interface {
	// CreateIfAbsent 依赖 (teacher_id, student_id) WHERE active 唯一索引；
	// 与已有 active 记录冲突时不报错，返回 created=false
	CreateIfAbsent(ctx context.Context, enrollment *model.Enrollment) (created bool, err error)
	GetActive(ctx context.Context, teacherID, studentID string) (*model.Enrollment, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]model.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.Enrollment, error)
}

type enrollmentRepo struct {
	db *gorm.DB
}

// NewEnrollmentRepo 创建 EnrollmentRepository 实例
func NewEnrollmentRepo(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepo{db: db}
}

func (r *enrollmentRepo) CreateIfAbsent(ctx context.Context, enrollment *model.Enrollment) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(enrollment)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *enrollmentRepo) GetActive(ctx context.Context, teacherID, studentID string) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND student_id = ? AND active = ?", teacherID, studentID, true).
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (r *enrollmentRepo) ListByTeacher(ctx context.Context, teacherID string) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND active = ?", teacherID, true).
		Order("created_at DESC").
		Find(&enrollments).Error
	return enrollments, err
}

func (r *enrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND active = ?", studentID, true).
		Order("created_at DESC").
		Find(&enrollments).Error
	return enrollments, err
}
