package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fitsstore-go/internal/config"
	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/log"
)

// UploadHandler 接收运维推送的原始文件字节。
type UploadHandler struct {
	uploadService *service.UploadService
	authCookie    string
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。authCookie 为空时不检查上传 cookie。
func NewUploadHandler(uploadService *service.UploadService, authCookie string) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, authCookie: authCookie}
}

// Upload 处理 POST /upload_file/:filename，请求体即文件内容。
// ?processed_cal=true 时写入处理后定标目录。响应是 [{"filename","size","md5"}]。
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.authCookie != "" {
		cookie, err := c.Cookie(config.UploadCookieName)
		if err != nil || cookie != h.authCookie {
			log.Warnf("[UploadHandler] 拒绝上传 %s: 缺少或错误的上传 cookie", c.Param("filename"))
			c.JSON(http.StatusForbidden, gin.H{
				"code":    http.StatusForbidden,
				"message": "上传需要有效的授权 cookie",
			})
			return
		}
	}

	processed := c.Query("processed_cal") == "true"
	res, err := h.uploadService.Upload(c.Request.Context(), c.Param("filename"), c.Request.Body, c.Request.ContentLength, processed)
	if err != nil {
		fail(c, "UploadHandler", err)
		return
	}
	c.JSON(http.StatusOK, []service.UploadResult{*res})
}
