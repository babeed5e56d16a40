package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fitsstore-go/internal/model"
)

// StaffAuthMiddleware 检查用户是否为工作人员或管理员。
// 此中间件必须在 AuthMiddleware 之后使用。
func StaffAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
			return
		}
		currentUser, ok := user.(*model.User)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "用户数据类型错误"})
			return
		}

		switch currentUser.Role() {
		case model.RoleAdmin, model.RoleStaff:
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "权限不足，需要工作人员权限"})
		}
	}
}
