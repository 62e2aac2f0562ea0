package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mang4123/edumanager-backend-sub000/internal/dto"
	"github.com/mang4123/edumanager-backend-sub000/internal/service"
	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
	"github.com/mang4123/edumanager-backend-sub000/pkg/response"
)

// ProfileHandler 用户资料 HTTP 处理器
type ProfileHandler struct {
	profileSvc service.ProfileService
}

// NewProfileHandler 创建 ProfileHandler
func NewProfileHandler(profileSvc service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileSvc: profileSvc}
}

// Reconcile 对账当前用户资料：不存在则按身份声明创建，已存在则原样返回
// PUT /api/profile
func (h *ProfileHandler) Reconcile(c *gin.Context) {
	claims, ok := MustGetClaims(c)
	if !ok {
		return
	}

	var req dto.ReconcileProfileRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	desired := profile.Resolve(service.IdentityFromClaims(claims))
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		desired.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		desired.Phone = strings.TrimSpace(*req.Phone)
	}

	p, err := h.profileSvc.Reconcile(c.Request.Context(), desired)
	if err != nil {
		respondError(c, err)
		return
	}

	response.OK(c, dto.UserResponse{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
		Phone: p.Phone,
		Role:  p.Role,
	})
}
