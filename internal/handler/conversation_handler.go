package handler

import (
	"github.com/gin-gonic/gin"

	"doc-whisper-go/internal/service"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// Get 返回会话最近的消息。
func (h *ConversationHandler) Get(c *gin.Context) {
	history, err := h.service.GetConversationHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", history)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.service.ClearConversation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "会话已清空", nil)
}
