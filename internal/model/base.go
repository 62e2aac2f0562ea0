package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
)

// ── JSONB 元数据类型 ──

// Metadata 对应 identities.metadata JSONB 列，实现 GORM Scanner/Valuer 接口。
type Metadata profile.Metadata

// Scan 将数据库返回的 JSON 文本解析为 Metadata。
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("Metadata.Scan: unsupported type %T", src)
	}
	if len(b) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(b, m)
}

// Value 将 Metadata 序列化为 JSON 文本。
func (m Metadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// BaseModel 通用审计字段
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// newID 主键由应用生成，postgres 与 sqlite 行为一致
func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// All 全部核心模型（sqlite 开发模式 AutoMigrate 与测试使用）
func All() []interface{} {
	return []interface{}{
		&Identity{},
		&Profile{},
		&Invite{},
		&Enrollment{},
	}
}
