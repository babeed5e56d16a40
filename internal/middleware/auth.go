// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/token"
)

var (
	errNoAuthHeader  = errors.New("请求未包含授权头")
	errBadAuthHeader = errors.New("无效的授权头格式")
	errBadToken      = errors.New("无效或已过期的 token")
	errNoUser        = errors.New("用户不存在")
)

// authenticate 从 Authorization 头解析 token，检查黑名单并把用户与 claims 写入上下文。
func authenticate(c *gin.Context, jwtManager *token.JWTManager, blacklist token.Blacklist, userService service.UserService) error {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return errNoAuthHeader
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return errBadAuthHeader
	}
	claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
	if err != nil {
		return errBadToken
	}
	revoked, err := blacklist.IsRevoked(c.Request.Context(), claims)
	if err != nil {
		log.Warnf("[Auth] 查询 token 黑名单失败: %v", err)
	}
	if revoked {
		return errBadToken
	}

	// 使用 claims 中的用户名从数据库获取完整的用户信息，角色以数据库为准
	user, err := userService.GetProfile(c.Request.Context(), claims.Username)
	if err != nil {
		return errNoUser
	}
	c.Set("user", user)
	c.Set("claims", claims)
	return nil
}

// AuthMiddleware 创建一个要求 JWT 认证的 Gin 中间件。
func AuthMiddleware(jwtManager *token.JWTManager, blacklist token.Blacklist, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authenticate(c, jwtManager, blacklist, userService); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": err.Error()})
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware 在请求携带 token 时注入用户，否则按匿名请求继续。
// 下载、文件列表等公开接口用它让访问控制识别登录用户。
func OptionalAuthMiddleware(jwtManager *token.JWTManager, blacklist token.Blacklist, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := authenticate(c, jwtManager, blacklist, userService)
		if err != nil && !errors.Is(err, errNoAuthHeader) {
			log.Warnf("[Auth] 忽略无效的凭证, path=%s: %v", c.Request.URL.Path, err)
		}
		c.Next()
	}
}
