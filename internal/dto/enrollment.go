package dto

// ── 师生关系 DTO ──

// EnrollmentResponse 师生关系响应
type EnrollmentResponse struct {
	ID        string  `json:"id"`
	TeacherID string  `json:"teacher_id"`
	StudentID string  `json:"student_id"`
	InviteID  *string `json:"invite_id,omitempty"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at"`
}
