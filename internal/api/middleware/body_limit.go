package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mang4123/edumanager-backend-sub000/pkg/response"
)

// BodyLimit 请求体大小限制
// Content-Length 已超限时直接返回 413；未声明长度的请求由 MaxBytesReader 截断，
// 绑定失败时由 handler 识别 *http.MaxBytesError
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.PayloadTooLarge(c)
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()
	}
}
