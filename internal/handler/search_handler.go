package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/errkind"
)

// SearchHandler 负责全文头信息检索与完整头信息查看。
type SearchHandler struct {
	searchService *service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService *service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 处理 GET /fullheader/search?q=&size=。
func (h *SearchHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	hits, err := h.searchService.Search(c.Request.Context(), c.Query("q"), size, requester(c))
	if err != nil {
		fail(c, "SearchHandler", err)
		return
	}
	ok(c, hits)
}

// FullHeader 处理 GET /fullheader/:diskfile_id，返回纯文本的头卡片。
func (h *SearchHandler) FullHeader(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("diskfile_id"), 10, 64)
	if err != nil {
		fail(c, "SearchHandler", errkind.Validation.New("invalid diskfile id %q", c.Param("diskfile_id")))
		return
	}
	text, err := h.searchService.FullHeader(c.Request.Context(), uint(id), requester(c))
	if err != nil {
		fail(c, "SearchHandler", err)
		return
	}
	c.String(http.StatusOK, text)
}
