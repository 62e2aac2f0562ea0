package dto

// ── 邀请模块 DTO ──

// CreateInviteRequest 创建邀请请求
type CreateInviteRequest struct {
	StudentName  string  `json:"student_name"  binding:"required,min=2,max=100"`
	StudentEmail string  `json:"student_email" binding:"required,email"`
	StudentPhone *string `json:"student_phone" binding:"omitempty,max=30"`
	Message      *string `json:"message"       binding:"omitempty,max=1000"`
}

// AcceptInviteRequest 接受邀请请求
type AcceptInviteRequest struct {
	Token string `json:"token" binding:"required,max=64"`
}

// InviteResponse 邀请响应（status 为展示状态）
type InviteResponse struct {
	ID           string  `json:"id"`
	Token        string  `json:"token"`
	InviteURL    string  `json:"invite_url"`
	StudentName  string  `json:"student_name"`
	StudentEmail string  `json:"student_email"`
	StudentPhone *string `json:"student_phone,omitempty"`
	Message      *string `json:"message,omitempty"`
	Status       string  `json:"status"`
	ExpiresAt    string  `json:"expires_at"`
	UsedAt       *string `json:"used_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// InviteValidateResponse 注册页邀请预览
type InviteValidateResponse struct {
	Valid        bool   `json:"valid"`
	Status       string `json:"status"`
	TeacherName  string `json:"teacher_name,omitempty"`
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
	ExpiresAt    string `json:"expires_at"`
}
