package dto

// ── 认证模块 DTO ──

// RegisterRequest 注册请求
// 角色由注册表单显式给出；invite 非空时注册成功后立即消费邀请
type RegisterRequest struct {
	Role     string `json:"role"     binding:"required,oneof=teacher student"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Name     string `json:"name"     binding:"required,min=2,max=100"`
	Phone    string `json:"phone"    binding:"omitempty,max=30"`
	Invite   string `json:"invite"   binding:"omitempty,max=64"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ReconcileProfileRequest 资料对账请求
// 字段仅在资料首次创建时生效，已存在的资料原样返回
type ReconcileProfileRequest struct {
	Name  *string `json:"name"  binding:"omitempty,min=2,max=100"`
	Phone *string `json:"phone" binding:"omitempty,max=30"`
}

// ── 认证模块响应 ──

// UserResponse 用户资料响应
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

// TokenResponse 登录/注册/刷新响应
type TokenResponse struct {
	User         UserResponse        `json:"user"`
	Token        string              `json:"token"`
	RefreshToken string              `json:"refresh_token"`
	ExpiresIn    int                 `json:"expires_in"` // Access Token 有效期（秒）
	Enrollment   *EnrollmentResponse `json:"enrollment,omitempty"`
}

// MeResponse GET /auth/me
type MeResponse struct {
	User UserResponse `json:"user"`
}
