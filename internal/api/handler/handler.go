package handler

import "github.com/mang4123/edumanager-backend-sub000/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth       *AuthHandler
	Profile    *ProfileHandler
	Invite     *InviteHandler
	Enrollment *EnrollmentHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:       NewAuthHandler(svc.Auth),
		Profile:    NewProfileHandler(svc.Profile),
		Invite:     NewInviteHandler(svc.Invite, svc.Enrollment),
		Enrollment: NewEnrollmentHandler(svc.Enrollment),
	}
}
