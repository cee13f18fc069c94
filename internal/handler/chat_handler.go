package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"doc-whisper-go/internal/service"
	"doc-whisper-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 处理问答请求，支持普通 HTTP 与 WebSocket 流式两种方式。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Ask 处理 POST /chat。
func (h *ChatHandler) Ask(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "请求体格式错误")
		return
	}
	resp, err := h.chatService.Answer(c.Request.Context(), req)
	if err != nil {
		log.Errorf("[ChatHandler] 问答失败: %v", err)
		respondError(c, err)
		return
	}
	respondOK(c, "success", resp)
}

// lockedConn 串行化对同一连接的写入：读循环回发停止确认，与流式回答可能并发。
type lockedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *lockedConn) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(messageType, data)
}

func (l *lockedConn) writeJSON(v interface{}) {
	b, _ := json.Marshal(v)
	_ = l.WriteMessage(websocket.TextMessage, b)
}

// wsMessage 是客户端发送的消息；纯文本消息被视为问题。
type wsMessage struct {
	Type string `json:"type"`
	service.ChatRequest
}

// Stream 处理 GET /api/v1/chat/ws。每个问题在独立 goroutine 中流式回答，
// 期间收到 {"type":"stop"} 会中止下发。
func (h *ChatHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立: %s", c.ClientIP())

	out := &lockedConn{conn: conn}
	var (
		stopped atomic.Bool
		busy    atomic.Bool
		wg      sync.WaitGroup
		convID  string
		convMu  sync.Mutex
	)
	// 连接断开时先取消进行中的回答，再等待其退出
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer wg.Wait()
	defer cancel()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Debugf("WebSocket 连接关闭: %v", err)
			return
		}

		msg := parseWSMessage(message)
		if msg.Type == "stop" {
			stopped.Store(true)
			out.writeJSON(gin.H{"type": "stop", "message": "响应已停止", "timestamp": time.Now().UnixMilli()})
			continue
		}
		if !busy.CompareAndSwap(false, true) {
			out.writeJSON(gin.H{"error": "上一个问题仍在回答中"})
			continue
		}

		convMu.Lock()
		if msg.ConversationID == "" {
			msg.ConversationID = convID
		}
		convMu.Unlock()
		stopped.Store(false)

		wg.Add(1)
		go func(req service.ChatRequest) {
			defer wg.Done()
			defer busy.Store(false)

			resp, err := h.chatService.StreamAnswer(ctx, req, out, stopped.Load)
			if err != nil {
				log.Errorf("处理流式响应失败: %v", err)
				out.writeJSON(gin.H{"error": err.Error(), "code": statusFor(err)})
				out.writeJSON(gin.H{"type": "completion", "status": "finished", "timestamp": time.Now().UnixMilli()})
				return
			}
			convMu.Lock()
			convID = resp.ConversationID
			convMu.Unlock()
		}(msg.ChatRequest)
	}
}

func parseWSMessage(message []byte) wsMessage {
	var msg wsMessage
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &msg) == nil {
		return msg
	}
	msg.Question = trimmed
	return msg
}
