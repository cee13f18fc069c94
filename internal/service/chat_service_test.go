package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/repository"
)

type chatFixture struct {
	emb   *tableEmbedder
	llm   *fakeLLM
	convs repository.ConversationRepository
	svc   ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	f := &chatFixture{
		emb:   &tableEmbedder{vectors: map[string][]float32{"cats?": {1, 0, 0}, "unrelated": {0, 0, 1}}},
		llm:   &fakeLLM{answer: "Cats purr.", chunks: []string{"Cats ", "purr."}},
		convs: repository.NewMemoryConversationRepository(10),
	}
	retrieval := NewRetrievalService(f.emb, seededIndex(t), 5, 0.5)
	f.svc = NewChatService(retrieval, NewPromptBuilder(""), f.llm, f.convs, FallbackTexts{})
	return f
}

func TestAnswerMatched(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	resp, err := f.svc.Answer(ctx, ChatRequest{Question: "  cats?  ", DocumentID: "doc-B"})
	require.NoError(t, err)
	assert.Equal(t, "Cats purr.", resp.Answer)
	assert.Equal(t, OutcomeMatched, resp.Outcome)
	assert.NotEmpty(t, resp.ConversationID)
	require.Len(t, resp.Sources, 2)

	require.Len(t, f.llm.messages, 2)
	assert.Equal(t, "system", f.llm.messages[0].Role)
	assert.Contains(t, f.llm.messages[0].Content, "cats purr\n\ncats and dogs")
	assert.Equal(t, "user", f.llm.messages[1].Role)
	assert.Equal(t, "cats?", f.llm.messages[1].Content)

	history, err := f.convs.GetHistory(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "cats?", history[0].Content)
	assert.Equal(t, "Cats purr.", history[1].Content)
}

func TestAnswerIncludesHistory(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	require.NoError(t, f.convs.Append(ctx, "conv-1",
		model.ChatMessage{Role: "user", Content: "earlier question"},
		model.ChatMessage{Role: "assistant", Content: "earlier answer"},
	))

	resp, err := f.svc.Answer(ctx, ChatRequest{Question: "cats?", ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", resp.ConversationID)
	require.Len(t, f.llm.messages, 4)
	assert.Equal(t, "earlier question", f.llm.messages[1].Content)
	assert.Equal(t, "earlier answer", f.llm.messages[2].Content)
}

func TestAnswerEmptyScope(t *testing.T) {
	f := newChatFixture(t)

	resp, err := f.svc.Answer(context.Background(), ChatRequest{Question: "cats?", DocumentID: "doc-A"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyScope, resp.Outcome)
	assert.Equal(t, DefaultEmptyDocumentText, resp.Answer)
	assert.Zero(t, f.llm.calls)
	assert.Zero(t, f.emb.calls)
}

func TestAnswerNoRelevantMatch(t *testing.T) {
	f := newChatFixture(t)

	resp, err := f.svc.Answer(context.Background(), ChatRequest{Question: "unrelated", DocumentID: "doc-B"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoRelevantMatch, resp.Outcome)
	assert.Equal(t, DefaultNoResultText, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, f.llm.calls)
}

func TestAnswerErrors(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		f := newChatFixture(t)
		_, err := f.svc.Answer(context.Background(), ChatRequest{Question: "   "})
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("embedding failure", func(t *testing.T) {
		f := newChatFixture(t)
		f.emb.err = errors.New("down")
		_, err := f.svc.Answer(context.Background(), ChatRequest{Question: "cats?"})
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Zero(t, f.llm.calls)
	})

	t.Run("generation failure", func(t *testing.T) {
		f := newChatFixture(t)
		f.llm.err = errors.New("upstream 500")
		_, err := f.svc.Answer(context.Background(), ChatRequest{Question: "cats?"})
		assert.ErrorIs(t, err, ErrGenerationFailed)
	})
}

func TestStreamAnswer(t *testing.T) {
	f := newChatFixture(t)
	w := &recordingWriter{}

	resp, err := f.svc.StreamAnswer(context.Background(), ChatRequest{Question: "cats?", DocumentID: "doc-B"}, w, nil)
	require.NoError(t, err)
	assert.Equal(t, "Cats purr.", resp.Answer)

	require.Len(t, w.frames, 3)
	assert.JSONEq(t, `{"chunk":"Cats "}`, w.frames[0])
	assert.JSONEq(t, `{"chunk":"purr."}`, w.frames[1])
	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(w.frames[2]), &done))
	assert.Equal(t, "completion", done["type"])
	assert.Equal(t, string(OutcomeMatched), done["outcome"])
}

func TestStreamAnswerStop(t *testing.T) {
	f := newChatFixture(t)
	w := &recordingWriter{}

	resp, err := f.svc.StreamAnswer(context.Background(), ChatRequest{Question: "cats?"}, w, func() bool { return true })
	require.NoError(t, err)
	assert.Empty(t, resp.Answer)
	// 只剩完成通知
	require.Len(t, w.frames, 1)

	history, err := f.convs.GetHistory(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStreamAnswerFallback(t *testing.T) {
	f := newChatFixture(t)
	w := &recordingWriter{}

	resp, err := f.svc.StreamAnswer(context.Background(), ChatRequest{Question: "cats?", DocumentID: "doc-A"}, w, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyScope, resp.Outcome)
	require.Len(t, w.frames, 2)
	assert.Contains(t, w.frames[0], "empty or was not processed correctly")
	assert.Zero(t, f.llm.calls)
}
