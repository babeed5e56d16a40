// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/log"
)

// AdminHandler 负责工作人员对用户项目注册与身份的管理。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func userIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的用户 ID", "data": nil})
		return 0, false
	}
	return uint(id), true
}

// AssignProgramsRequest 定义了分配项目 API 的请求体结构。
type AssignProgramsRequest struct {
	Programs []string `json:"programs"`
}

// AssignPrograms 处理 PUT /api/v1/admin/users/:id/programs。
func (h *AdminHandler) AssignPrograms(c *gin.Context) {
	userID, valid := userIDParam(c)
	if !valid {
		return
	}
	var req AssignProgramsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}
	if err := h.adminService.AssignPrograms(c.Request.Context(), userID, req.Programs); err != nil {
		fail(c, "AdminHandler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "项目分配成功", "data": nil})
}

// SetStaffRequest 定义了设置工作人员标记 API 的请求体结构。
type SetStaffRequest struct {
	Staff *bool `json:"gemini_staff" binding:"required"`
}

// SetStaff 处理 PUT /api/v1/admin/users/:id/staff。
func (h *AdminHandler) SetStaff(c *gin.Context) {
	userID, valid := userIDParam(c)
	if !valid {
		return
	}
	var req SetStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}
	if err := h.adminService.SetStaff(c.Request.Context(), userID, *req.Staff); err != nil {
		fail(c, "AdminHandler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// ListUsers 处理 GET /api/v1/admin/users/list?page=&size=。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	resp, err := h.adminService.ListUsers(c.Request.Context(), page, size)
	if err != nil {
		log.Errorf("[AdminHandler] 获取用户列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取用户列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resp})
}
