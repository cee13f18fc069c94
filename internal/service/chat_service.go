package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/repository"
	"doc-whisper-go/internal/vectorindex"
	"doc-whisper-go/pkg/llm"
	"doc-whisper-go/pkg/log"
)

var (
	// ErrGenerationFailed 表示大模型调用失败。
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmptyQuestion 表示问题为空。
	ErrEmptyQuestion = errors.New("question must not be empty")
)

// 空作用域与无命中时直接返回的固定回复。
const (
	DefaultEmptyDocumentText = "I apologize, but this document seems to be empty or was not processed correctly. Please try deleting and re-uploading it."
	DefaultNoResultText      = "I apologize, but I couldn't find any relevant information in this document to answer your question. The document might be empty or the content might not be indexable."
)

// FallbackTexts 配置两种空结果的回复文案。
type FallbackTexts struct {
	EmptyDocument string
	NoResult      string
}

// ChatRequest 是一次提问。
type ChatRequest struct {
	Question       string `json:"question"`
	DocumentID     string `json:"documentId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatResponse 是回答以及支撑它的分块。
type ChatResponse struct {
	Answer         string            `json:"answer"`
	ConversationID string            `json:"conversationId"`
	Outcome        Outcome           `json:"outcome"`
	Sources        []vectorindex.Hit `json:"sources"`
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	Answer(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// StreamAnswer 把回答分块写入 writer，shouldStop 返回 true 后不再下发。
	StreamAnswer(ctx context.Context, req ChatRequest, writer llm.MessageWriter, shouldStop func() bool) (*ChatResponse, error)
}

type chatService struct {
	retrieval        RetrievalService
	prompts          *PromptBuilder
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	texts            FallbackTexts
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(retrieval RetrievalService, prompts *PromptBuilder, llmClient llm.Client, conversationRepo repository.ConversationRepository, texts FallbackTexts) ChatService {
	if texts.EmptyDocument == "" {
		texts.EmptyDocument = DefaultEmptyDocumentText
	}
	if texts.NoResult == "" {
		texts.NoResult = DefaultNoResultText
	}
	return &chatService{
		retrieval:        retrieval,
		prompts:          prompts,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		texts:            texts,
	}
}

// chatTurn 是检索完成后、调用大模型之前的中间状态。
type chatTurn struct {
	resp     *ChatResponse
	question string
	messages []llm.Message
}

func (s *chatService) prepare(ctx context.Context, req ChatRequest) (*chatTurn, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	result, err := s.retrieval.Retrieve(ctx, question, RetrieveOptions{DocumentID: req.DocumentID})
	if err != nil {
		return nil, err
	}
	turn := &chatTurn{
		question: question,
		resp: &ChatResponse{
			ConversationID: convID,
			Outcome:        result.Outcome,
			Sources:        result.Passages,
		},
	}
	switch result.Outcome {
	case OutcomeEmptyScope:
		turn.resp.Answer = s.texts.EmptyDocument
		return turn, nil
	case OutcomeNoRelevantMatch:
		turn.resp.Answer = s.texts.NoResult
		return turn, nil
	}

	prompt := s.prompts.BuildPrompt(question, result.Texts())
	history, err := s.conversationRepo.GetHistory(ctx, convID)
	if err != nil {
		log.Errorf("[ChatService] 加载会话历史失败, conversationId=%s: %v", convID, err)
		history = nil
	}
	turn.messages = composeMessages(prompt, history)
	return turn, nil
}

// Answer 执行完整的 RAG 流程；两种空结果不会调用大模型。
func (s *chatService) Answer(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	turn, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if turn.messages == nil {
		return turn.resp, nil
	}

	answer, err := s.llmClient.Generate(ctx, turn.messages, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	turn.resp.Answer = answer
	s.saveTurn(turn)
	return turn.resp, nil
}

// StreamAnswer 与 Answer 相同，但以 {"chunk":"..."} 的形式逐块推送回答。
func (s *chatService) StreamAnswer(ctx context.Context, req ChatRequest, writer llm.MessageWriter, shouldStop func() bool) (*ChatResponse, error) {
	turn, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	interceptor := &wsWriterInterceptor{conn: writer, writer: &strings.Builder{}, shouldStop: shouldStop}

	if turn.messages == nil {
		if err := interceptor.WriteMessage(websocket.TextMessage, []byte(turn.resp.Answer)); err != nil {
			return nil, err
		}
		sendCompletion(writer, turn.resp)
		return turn.resp, nil
	}

	if err := s.llmClient.StreamChatMessages(ctx, turn.messages, nil, interceptor); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	turn.resp.Answer = interceptor.writer.String()
	sendCompletion(writer, turn.resp)
	if turn.resp.Answer != "" {
		s.saveTurn(turn)
	}
	return turn.resp, nil
}

// saveTurn 使用后台上下文，即使原始请求被取消也保存已生成的回答。
func (s *chatService) saveTurn(turn *chatTurn) {
	now := time.Now()
	err := s.conversationRepo.Append(context.Background(), turn.resp.ConversationID,
		model.ChatMessage{Role: "user", Content: turn.question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: turn.resp.Answer, Timestamp: now},
	)
	if err != nil {
		log.Errorf("[ChatService] 保存会话历史失败: %v", err)
	}
}

func composeMessages(prompt Prompt, history []model.ChatMessage) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: prompt.System})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: prompt.User})
	return msgs
}

// wsWriterInterceptor 包装 websocket 写入，用于捕获完整回答。
type wsWriterInterceptor struct {
	conn       llm.MessageWriter
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		return nil
	}
	w.writer.Write(data)
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(w llm.MessageWriter, resp *ChatResponse) {
	notif := map[string]interface{}{
		"type":           "completion",
		"status":         "finished",
		"conversationId": resp.ConversationID,
		"outcome":        resp.Outcome,
		"sources":        resp.Sources,
		"timestamp":      time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = w.WriteMessage(websocket.TextMessage, b)
}
