package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mang4123/edumanager-backend-sub000/internal/service"
	"github.com/mang4123/edumanager-backend-sub000/pkg/response"
)

// EnrollmentHandler 师生关系 HTTP 处理器
type EnrollmentHandler struct {
	enrollmentSvc service.EnrollmentService
}

// NewEnrollmentHandler 创建 EnrollmentHandler
func NewEnrollmentHandler(enrollmentSvc service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollmentSvc: enrollmentSvc}
}

// List 教师查看名下学生，学生查看所属教师
// GET /api/enrollments
func (h *EnrollmentHandler) List(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}

	list, err := h.enrollmentSvc.List(c.Request.Context(), userID, role)
	if err != nil {
		respondError(c, err)
		return
	}

	response.OK(c, list)
}
