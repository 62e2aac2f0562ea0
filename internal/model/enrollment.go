package model

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment 师生关系表，对应 enrollments
// 同一 (teacher_id, student_id) 至多一条 active 记录（部分唯一索引）
type Enrollment struct {
	ID        string    `gorm:"type:uuid;primaryKey"                                                           json:"id"`
	TeacherID string    `gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_active_pair,where:active = true" json:"teacher_id"`
	StudentID string    `gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_active_pair,where:active = true" json:"student_id"`
	InviteID  *string   `gorm:"type:uuid"                                                                      json:"invite_id,omitempty"`
	Active    bool      `gorm:"not null"                                                                       json:"active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"                                             json:"created_at"`
}

// TableName 指定表名
func (Enrollment) TableName() string { return "enrollments" }

// BeforeCreate 生成主键
func (e *Enrollment) BeforeCreate(_ *gorm.DB) error {
	newID(&e.ID)
	return nil
}
