// Package profile 从身份声明推导应用层 Profile。
//
// Resolve 是纯函数，客户端会话管理器与服务端 Token 校验（自动补建 Profile）共用同一套角色优先级：
//
//	显式 role 声明 → 次级 user_type 声明 → 邮箱关键字（历史数据迁移垫片）→ 默认 teacher
package profile

import "strings"

// 角色
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// DefaultRole 无任何可用声明时的兜底角色
const DefaultRole = RoleTeacher

// Metadata 身份提供方保存的注册元数据
type Metadata struct {
	Role     string `json:"role,omitempty"`
	UserType string `json:"user_type,omitempty"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Identity 身份声明（对本系统只读）
type Identity struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Metadata Metadata `json:"metadata"`
}

// Profile 应用层用户资料，ID 与 Identity.ID 相同
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

// IsValidRole 是否为受支持的角色
func IsValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent
}

// Resolve 由身份声明推导 Profile
func Resolve(id Identity) Profile {
	return Profile{
		ID:    id.ID,
		Name:  displayName(id),
		Email: strings.ToLower(strings.TrimSpace(id.Email)),
		Phone: strings.TrimSpace(id.Metadata.Phone),
		Role:  ResolveRole(id),
	}
}

// ResolveRole 按优先级推导角色
func ResolveRole(id Identity) string {
	if r := normalizeRole(id.Metadata.Role); r != "" {
		return r
	}
	if r := normalizeRole(id.Metadata.UserType); r != "" {
		return r
	}
	if r := legacyRoleFromEmail(id.Email); r != "" {
		return r
	}
	return DefaultRole
}

// normalizeRole 兼容历史数据中的葡语取值
func normalizeRole(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "teacher", "professor":
		return RoleTeacher
	case "student", "aluno":
		return RoleStudent
	}
	return ""
}

// legacyRoleFromEmail 历史账号没有角色声明，只能按邮箱关键字猜测。
// 仅作为迁移垫片；新注册账号必须显式携带 role。
func legacyRoleFromEmail(email string) string {
	e := strings.ToLower(email)
	switch {
	case strings.Contains(e, "aluno"), strings.Contains(e, "student"):
		return RoleStudent
	case strings.Contains(e, "prof"), strings.Contains(e, "teacher"):
		return RoleTeacher
	}
	return ""
}

func displayName(id Identity) string {
	if n := strings.TrimSpace(id.Metadata.Name); n != "" {
		return n
	}
	local, _, _ := strings.Cut(id.Email, "@")
	if local == "" {
		return "Usuário"
	}
	return local
}
