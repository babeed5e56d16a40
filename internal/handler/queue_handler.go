package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fitsstore-go/internal/service"
)

// QueueHandler 负责四个工作队列的入队与状态查询。
type QueueHandler struct {
	queues *service.QueueService
}

// NewQueueHandler 创建一个新的 QueueHandler 实例。
func NewQueueHandler(queues *service.QueueService) *QueueHandler {
	return &QueueHandler{queues: queues}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    http.StatusBadRequest,
		"message": "无效的请求负载: " + err.Error(),
	})
}

// Ingest 处理 POST /ingest_queue。
func (h *QueueHandler) Ingest(c *gin.Context) {
	var req service.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := h.queues.EnqueueIngest(c.Request.Context(), req)
	if err != nil {
		fail(c, "QueueHandler", err)
		return
	}
	ok(c, gin.H{"id": id})
}

// Export 处理 POST /export_queue。
func (h *QueueHandler) Export(c *gin.Context) {
	var req service.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := h.queues.EnqueueExport(c.Request.Context(), req)
	if err != nil {
		fail(c, "QueueHandler", err)
		return
	}
	ok(c, gin.H{"id": id})
}

type previewRequest struct {
	DiskFileID uint `json:"diskfile_id" binding:"required"`
	Force      bool `json:"force"`
}

// Preview 处理 POST /preview_queue。
func (h *QueueHandler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := h.queues.EnqueuePreview(c.Request.Context(), req.DiskFileID, req.Force)
	if err != nil {
		fail(c, "QueueHandler", err)
		return
	}
	ok(c, gin.H{"id": id})
}

type calCacheRequest struct {
	ObsHID uint `json:"obs_hid" binding:"required"`
}

// CalCache 处理 POST /calcache_queue。
func (h *QueueHandler) CalCache(c *gin.Context) {
	var req calCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := h.queues.EnqueueCalCache(c.Request.Context(), req.ObsHID)
	if err != nil {
		fail(c, "QueueHandler", err)
		return
	}
	ok(c, gin.H{"id": id})
}

// Status 处理 GET /queuestatus/:queue，可选 ?limit=。
func (h *QueueHandler) Status(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	st, err := h.queues.Status(c.Request.Context(), c.Param("queue"), limit)
	if err != nil {
		fail(c, "QueueHandler", err)
		return
	}
	ok(c, st)
}
