package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"doc-whisper-go/internal/model"
)

// ConversationRepository 保存每个会话最近的若干条消息。
type ConversationRepository interface {
	GetHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	// Append 追加消息并只保留最近 maxMessages 条。
	Append(ctx context.Context, conversationID string, messages ...model.ChatMessage) error
	Delete(ctx context.Context, conversationID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
	maxMessages int
	ttl         time.Duration
}

// NewConversationRepository 创建基于 Redis List 的会话存储。
func NewConversationRepository(redisClient *redis.Client, maxMessages int, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, maxMessages: maxMessages, ttl: ttl}
}

func conversationKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// GetHistory 从 Redis 获取对话历史记录，会话不存在时返回空切片。
func (r *redisConversationRepository) GetHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, conversationKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Append 在一个 MULTI 事务中完成 RPUSH、LTRIM 与续期。
func (r *redisConversationRepository) Append(ctx context.Context, conversationID string, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation message: %w", err)
		}
		values = append(values, data)
	}

	key := conversationKey(conversationID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if r.maxMessages > 0 {
			pipe.LTrim(ctx, key, int64(-r.maxMessages), -1)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}

func (r *redisConversationRepository) Delete(ctx context.Context, conversationID string) error {
	if err := r.redisClient.Del(ctx, conversationKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// memoryConversationRepository 在未配置 Redis 时使用，进程退出即丢失。
type memoryConversationRepository struct {
	mu            sync.Mutex
	maxMessages   int
	conversations map[string][]model.ChatMessage
}

// NewMemoryConversationRepository 创建进程内的会话存储。
func NewMemoryConversationRepository(maxMessages int) ConversationRepository {
	return &memoryConversationRepository{
		maxMessages:   maxMessages,
		conversations: make(map[string][]model.ChatMessage),
	}
}

func (r *memoryConversationRepository) GetHistory(_ context.Context, conversationID string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.conversations[conversationID]
	out := make([]model.ChatMessage, len(history))
	copy(out, history)
	return out, nil
}

func (r *memoryConversationRepository) Append(_ context.Context, conversationID string, messages ...model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := append(r.conversations[conversationID], messages...)
	if r.maxMessages > 0 && len(history) > r.maxMessages {
		history = append([]model.ChatMessage(nil), history[len(history)-r.maxMessages:]...)
	}
	r.conversations[conversationID] = history
	return nil
}

func (r *memoryConversationRepository) Delete(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, conversationID)
	return nil
}
