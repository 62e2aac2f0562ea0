package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/mang4123/edumanager-backend-sub000/internal/dto"
	"github.com/mang4123/edumanager-backend-sub000/internal/service"
	"github.com/mang4123/edumanager-backend-sub000/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// InviteHandler 邀请模块 HTTP 处理器
type InviteHandler struct {
	inviteSvc     service.InviteService
	enrollmentSvc service.EnrollmentService
}

// NewInviteHandler 创建 InviteHandler
func NewInviteHandler(inviteSvc service.InviteService, enrollmentSvc service.EnrollmentService) *InviteHandler {
	return &InviteHandler{inviteSvc: inviteSvc, enrollmentSvc: enrollmentSvc}
}

// Create 教师发出邀请
// POST /api/invites
func (h *InviteHandler) Create(c *gin.Context) {
	teacherID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateInviteRequest
	if !bindJSON(c, &req) {
		return
	}

	inv, err := h.inviteSvc.Create(c.Request.Context(), teacherID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, inv)
}

// List 教师的邀请列表
// GET /api/invites
func (h *InviteHandler) List(c *gin.Context) {
	teacherID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.inviteSvc.List(c.Request.Context(), teacherID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.OK(c, list)
}

// Revoke 撤销邀请
// DELETE /api/invites/:id
func (h *InviteHandler) Revoke(c *gin.Context) {
	teacherID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.inviteSvc.Revoke(c.Request.Context(), teacherID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	response.OK(c, nil)
}

// Validate 注册页预览邀请（公开）
// GET /api/invites/:token/validate
func (h *InviteHandler) Validate(c *gin.Context) {
	result, err := h.inviteSvc.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.OK(c, result)
}

// Accept 已登录学生接受邀请
// POST /api/invites/accept
func (h *InviteHandler) Accept(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.AcceptInviteRequest
	if !bindJSON(c, &req) {
		return
	}

	enrollment, err := h.enrollmentSvc.Accept(c.Request.Context(), req.Token, studentID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.OK(c, enrollment)
}

// Export 导出邀请与学生名单
// GET /api/invites/export
func (h *InviteHandler) Export(c *gin.Context) {
	teacherID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	buf, filename, err := h.inviteSvc.ExportRoster(c.Request.Context(), teacherID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
