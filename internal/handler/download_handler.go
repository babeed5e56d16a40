package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/log"
)

// DownloadHandler 以 tar 包形式返回请求者有权访问的文件。
type DownloadHandler struct {
	files     *service.FileService
	downloads *service.DownloadService
}

// NewDownloadHandler 创建一个新的 DownloadHandler 实例。
func NewDownloadHandler(files *service.FileService, downloads *service.DownloadService) *DownloadHandler {
	return &DownloadHandler{files: files, downloads: downloads}
}

// Selection 处理 GET /download/*selection。
func (h *DownloadHandler) Selection(c *gin.Context) {
	sel, err := h.files.Parse(c.Param("selection"))
	if err != nil {
		fail(c, "DownloadHandler", err)
		return
	}
	plan, err := h.downloads.PlanSelection(c.Request.Context(), sel, requester(c))
	if err != nil {
		fail(c, "DownloadHandler", err)
		return
	}
	h.stream(c, plan)
}

// Files 处理 POST /download，表单字段 files 可重复，也可以用逗号或换行分隔。
func (h *DownloadHandler) Files(c *gin.Context) {
	var names []string
	for _, v := range c.PostFormArray("files") {
		names = append(names, strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == '\n' || r == '\r' || r == ' '
		})...)
	}
	plan, err := h.downloads.PlanFiles(c.Request.Context(), names, requester(c))
	if err != nil {
		fail(c, "DownloadHandler", err)
		return
	}
	h.stream(c, plan)
}

func (h *DownloadHandler) stream(c *gin.Context, plan *service.DownloadPlan) {
	c.Header("Content-Type", "application/tar")
	c.Header("Content-Disposition", "attachment; filename=download.tar")
	c.Status(http.StatusOK)
	if err := h.downloads.Write(c.Request.Context(), c.Writer, plan); err != nil {
		// 响应头已发出，只能记录日志并截断
		log.Errorf("[DownloadHandler] 写出 tar 失败: %v", err)
		_ = c.Error(err)
	}
}
