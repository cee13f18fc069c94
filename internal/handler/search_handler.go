package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"doc-whisper-go/internal/service"
	"doc-whisper-go/pkg/log"
)

// SearchHandler 暴露不经过大模型的纯语义检索。
type SearchHandler struct {
	retrieval service.RetrievalService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(retrieval service.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

// Search 处理 GET /search?query=&documentId=&topK=&minScore=
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		respondFail(c, http.StatusBadRequest, "无效的查询参数")
		return
	}

	opts := service.RetrieveOptions{DocumentID: c.Query("documentId")}
	if v := c.Query("topK"); v != "" {
		topK, err := strconv.Atoi(v)
		if err != nil || topK <= 0 {
			respondFail(c, http.StatusBadRequest, "topK 必须为正整数")
			return
		}
		opts.MaxResults = topK
	}
	if v := c.Query("minScore"); v != "" {
		minScore, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondFail(c, http.StatusBadRequest, "minScore 必须为数字")
			return
		}
		opts.MinScore = &minScore
	}

	result, err := h.retrieval.Retrieve(c.Request.Context(), query, opts)
	if err != nil {
		log.Errorf("[SearchHandler] 检索失败, query: %s, error: %v", query, err)
		respondError(c, err)
		return
	}
	log.Infof("[SearchHandler] 检索成功, query: '%s', outcome: %s, 返回 %d 条结果", query, result.Outcome, len(result.Passages))
	respondOK(c, "success", result)
}
