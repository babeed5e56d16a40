package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/errkind"
)

// FileHandler 提供选择路径驱动的文件列表、摘要与定标查询。
// jsonfilelist 与 jsonsummary 直接返回 JSON 数组，其他归档服务器依赖这一格式。
type FileHandler struct {
	files *service.FileService
	cals  *service.CalibrationService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(files *service.FileService, cals *service.CalibrationService) *FileHandler {
	return &FileHandler{files: files, cals: cals}
}

// FileList 处理 GET /jsonfilelist/*selection。
func (h *FileHandler) FileList(c *gin.Context) {
	sel, err := h.files.Parse(c.Param("selection"))
	if err != nil {
		fail(c, "FileHandler", err)
		return
	}
	list, err := h.files.FileList(c.Request.Context(), sel)
	if err != nil {
		fail(c, "FileHandler", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Summary 处理 GET /jsonsummary/*selection。
func (h *FileHandler) Summary(c *gin.Context) {
	sel, err := h.files.Parse(c.Param("selection"))
	if err != nil {
		fail(c, "FileHandler", err)
		return
	}
	list, err := h.files.Summary(c.Request.Context(), sel)
	if err != nil {
		fail(c, "FileHandler", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Calibrations 处理 GET /calibrations/:header_id，可选 ?caltype=。
func (h *FileHandler) Calibrations(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("header_id"), 10, 64)
	if err != nil {
		fail(c, "FileHandler", errkind.Validation.New("invalid header id %q", c.Param("header_id")))
		return
	}
	a, err := h.cals.Associated(c.Request.Context(), uint(id), c.Query("caltype"))
	if err != nil {
		fail(c, "FileHandler", err)
		return
	}
	ok(c, a)
}

// AssociatedCals 处理 GET /associated_cals/*selection，返回所选观测的定标文件列表。
func (h *FileHandler) AssociatedCals(c *gin.Context) {
	sel, err := h.files.Parse(c.Param("selection"))
	if err != nil {
		fail(c, "FileHandler", err)
		return
	}
	list, err := h.cals.AssociateSelection(c.Request.Context(), sel)
	if err != nil {
		fail(c, "FileHandler", err)
		return
	}
	c.JSON(http.StatusOK, list)
}
