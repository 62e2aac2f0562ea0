package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mang4123/edumanager-backend-sub000/internal/service"
	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/response"
)

// 邀请无效与过期对外不区分，避免探测 Token 是否存在
const msgInviteInvalid = "邀请无效或已过期"

// respondError 将业务错误映射为 HTTP 响应
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, "邮箱或密码错误")
	case errors.Is(err, service.ErrEmailTaken):
		response.Conflict(c, response.CodeEmailTaken, "该邮箱已注册")
	case errors.Is(err, service.ErrInvalidRole):
		response.BadRequest(c, response.CodeInvalidRole, "角色必须为 teacher 或 student")
	case errors.Is(err, service.ErrTokenInvalid):
		response.Unauthorized(c, response.CodeRefreshInvalid, "登录状态无效，请重新登录")
	case errors.Is(err, service.ErrProfileNotFound):
		response.NotFound(c, response.CodeProfileNotFound, "用户资料不存在")
	case errors.Is(err, service.ErrInviteNotFound):
		response.NotFound(c, response.CodeInviteNotFound, msgInviteInvalid)
	case errors.Is(err, service.ErrInviteExpired):
		response.Gone(c, response.CodeInviteExpired, msgInviteInvalid)
	case errors.Is(err, service.ErrInviteAlreadyAccepted):
		response.Conflict(c, response.CodeInviteAlreadyAccepted, "该邀请已被使用")
	case errors.Is(err, service.ErrExportGenerateFail):
		response.Error(c, http.StatusInternalServerError, response.CodeExportFailed, "生成 Excel 文件失败")
	case pkgerrors.IsTimeout(err):
		response.GatewayTimeout(c)
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}

// bindJSON 绑定请求体；超出 BodyLimit 时返回 413
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(c)
			return false
		}
		response.BadRequest(c, response.CodeValidation, "参数校验失败")
		return false
	}
	return true
}
