package model

import (
	"gorm.io/gorm"

	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
)

// Identity 身份表，对应 identities
// 由身份提供方（注册/登录）写入，Profile/邀请模块只读
type Identity struct {
	ID           string   `gorm:"type:uuid;primaryKey"                 json:"id"`
	Email        string   `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash string   `gorm:"type:varchar(255);not null"           json:"-"`
	Metadata     Metadata `gorm:"type:jsonb;not null"                  json:"metadata"`
	BaseModel
}

// TableName 指定表名
func (Identity) TableName() string { return "identities" }

// BeforeCreate 生成主键
func (i *Identity) BeforeCreate(_ *gorm.DB) error {
	newID(&i.ID)
	return nil
}

// Claims 转换为 Profile 推导所需的身份声明
func (i *Identity) Claims() profile.Identity {
	return profile.Identity{
		ID:       i.ID,
		Email:    i.Email,
		Metadata: profile.Metadata(i.Metadata),
	}
}
