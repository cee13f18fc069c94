package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"doc-whisper-go/internal/middleware"
)

// Handlers 汇总了注册路由所需的全部处理器。
type Handlers struct {
	Document     *DocumentHandler
	Chat         *ChatHandler
	Search       *SearchHandler
	Conversation *ConversationHandler
}

// NewRouter 创建 Gin 引擎并注册全部路由。
func NewRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("", h.Document.Upload)
			documents.GET("", h.Document.List)
			documents.GET("/:id", h.Document.Get)
			documents.DELETE("/:id", h.Document.Delete)
		}

		apiV1.POST("/chat", h.Chat.Ask)
		apiV1.GET("/chat/ws", h.Chat.Stream)
		apiV1.GET("/search", h.Search.Search)

		conversations := apiV1.Group("/conversations")
		{
			conversations.GET("/:id", h.Conversation.Get)
			conversations.DELETE("/:id", h.Conversation.Delete)
		}
	}

	return r
}
