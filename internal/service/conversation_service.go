package service

import (
	"context"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/repository"
)

// ConversationService 定义了对话历史的查询与清理。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	ClearConversation(ctx context.Context, conversationID string) error
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

func (s *conversationService) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	return s.repo.GetHistory(ctx, conversationID)
}

func (s *conversationService) ClearConversation(ctx context.Context, conversationID string) error {
	return s.repo.Delete(ctx, conversationID)
}
