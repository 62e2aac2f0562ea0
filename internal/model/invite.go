package model

import (
	"time"

	"gorm.io/gorm"
)

// 邀请状态（expired 仅用于展示，不落库）
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusExpired  = "expired"
)

// Invite 邀请表，对应 invites
type Invite struct {
	ID           string     `gorm:"type:uuid;primaryKey"                       json:"id"`
	Token        string     `gorm:"type:varchar(64);not null;uniqueIndex"      json:"token"`
	TeacherID    string     `gorm:"type:uuid;not null;index"                   json:"teacher_id"`
	StudentName  string     `gorm:"type:varchar(100);not null"                 json:"student_name"`
	StudentEmail string     `gorm:"type:varchar(255);not null"                 json:"student_email"`
	StudentPhone *string    `gorm:"type:varchar(30)"                           json:"student_phone,omitempty"`
	Message      *string    `gorm:"type:text"                                  json:"message,omitempty"`
	ExpiresAt    time.Time  `gorm:"not null"                                   json:"expires_at"`
	Status       string     `gorm:"type:varchar(20);not null;index"            json:"status"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	AcceptedBy   *string    `gorm:"type:uuid"                                  json:"accepted_by,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"         json:"created_at"`
}

// TableName 指定表名
func (Invite) TableName() string { return "invites" }

// BeforeCreate 生成主键并补齐初始状态
func (i *Invite) BeforeCreate(_ *gorm.DB) error {
	newID(&i.ID)
	if i.Status == "" {
		i.Status = InviteStatusPending
	}
	return nil
}

// IsExpired 是否已过有效期（墙钟推导，不是状态迁移）
func (i *Invite) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// DisplayStatus 展示状态：pending 且已过期时显示 expired
func (i *Invite) DisplayStatus(now time.Time) string {
	if i.Status == InviteStatusPending && i.IsExpired(now) {
		return InviteStatusExpired
	}
	return i.Status
}

// AcceptedByStudent 邀请是否由指定学生消费
func (i *Invite) AcceptedByStudent(studentID string) bool {
	return i.AcceptedBy != nil && *i.AcceptedBy == studentID
}
