package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequirePasswordChangeCompletedMiddleware 阻止仍需改密的账号访问看板接口。
// 只读 access token 里的声明，响应体带上标记供前端跳转到改密页。
func RequirePasswordChangeCompletedMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(mustChangePasswordKey) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":                "password change required",
				"must_change_password": true,
			})
			return
		}
		c.Next()
	}
}
