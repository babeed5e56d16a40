// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fitsstore-go/internal/config"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
)

// fail 按错误分类写出 JSON 错误响应。
func fail(c *gin.Context, op string, err error) {
	status := errkind.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[%s] 请求 %s 失败: %v", op, c.Request.URL.Path, err)
	} else {
		log.Warnf("[%s] 请求 %s 被拒绝: %v", op, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
	})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// currentUser 返回 AuthMiddleware 或 OptionalAuthMiddleware 注入的用户，匿名请求返回 nil。
func currentUser(c *gin.Context) *model.User {
	v, exists := c.Get("user")
	if !exists {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

// requester 汇总访问控制需要的请求者信息：登录用户与 magic 下载 cookie。
func requester(c *gin.Context) service.Requester {
	cookie, _ := c.Cookie(config.DownloadCookieName)
	return service.Requester{User: currentUser(c), Cookie: cookie}
}
