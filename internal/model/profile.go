package model

// Profile 用户资料表，对应 profiles
// 主键与 identities.id 相同，每个身份至多一条
type Profile struct {
	ID    string  `gorm:"type:uuid;primaryKey"          json:"id"`
	Name  string  `gorm:"type:varchar(100);not null"    json:"name"`
	Email string  `gorm:"type:varchar(255);not null"    json:"email"`
	Phone *string `gorm:"type:varchar(30)"              json:"phone,omitempty"`
	Role  string  `gorm:"type:varchar(20);not null"     json:"role"`
	BaseModel
}

// TableName 指定表名
func (Profile) TableName() string { return "profiles" }
