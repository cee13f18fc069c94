package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"doc-whisper-go/internal/config"
	"doc-whisper-go/internal/pipeline"
	"doc-whisper-go/internal/repository"
	"doc-whisper-go/internal/service"
)

// 无需 Tika 即可直接读取的纯文本扩展名
var plainTextExts = map[string]bool{".txt": true, ".md": true, ".markdown": true, ".csv": true, ".log": true}

func newChunkCmd(a *app) *cobra.Command {
	var size, overlap int
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Print the chunks a plain text file would be split into",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			chunks, err := pipeline.SplitText(string(data), size, overlap)
			if err != nil {
				return err
			}
			for i, c := range chunks {
				cmd.Printf("--- chunk %d (%d chars) ---\n%s\n", i, len([]rune(c)), c)
			}
			cmd.Printf("%d chunks\n", len(chunks))
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 500, "maximum chunk length in characters")
	cmd.Flags().IntVar(&overlap, "overlap", 50, "characters shared by adjacent chunks")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Extract, chunk, embed and index a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			ctx := cmd.Context()
			text, err := a.readText(ctx, args[0])
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}

			// 重复入库同一 id 时先清空旧分块
			if err := a.index.DeleteByScope(ctx, id); err != nil {
				return err
			}
			ingestor := pipeline.NewIngestor(a.embedder, a.index, a.cfg.RAG.ChunkSize, a.cfg.RAG.ChunkOverlap, a.cfg.RAG.EmbedConcurrency)
			n, err := ingestor.Ingest(ctx, id, text)
			if err != nil {
				return err
			}
			cmd.Printf("ingested %s as %s: %d chunks\n", filepath.Base(args[0]), id, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "document id (generated when empty)")
	return cmd
}

func (a *app) readText(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if plainTextExts[strings.ToLower(filepath.Ext(path))] {
		return string(data), nil
	}
	text, err := a.extractor.ExtractText(ctx, bytes.NewReader(data), filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("%w: %w", pipeline.ErrExtractionFailed, err)
	}
	return text, nil
}

func newAskCmd(a *app) *cobra.Command {
	var (
		docID       string
		topK        int
		minScore    float64
		showContext bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			rag := a.cfg.RAG
			if topK > 0 {
				rag.MaxResults = topK
			}
			if cmd.Flags().Changed("min-score") {
				rag.MinScore = minScore
			}
			chat := a.chatService(rag)

			resp, err := chat.Answer(cmd.Context(), service.ChatRequest{
				Question:   strings.Join(args, " "),
				DocumentID: docID,
			})
			if err != nil {
				return err
			}
			if showContext {
				for i, s := range resp.Sources {
					cmd.Printf("[%d] %s #%d (%.4f)\n%s\n\n", i+1, s.Scope, s.Position, s.Score, s.Text)
				}
			}
			cmd.Println(resp.Answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&docID, "doc", "", "restrict retrieval to one document id")
	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum passages to retrieve (config default when 0)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum cosine similarity")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print retrieved passages before the answer")
	return cmd
}

// chatService 组装单次提问使用的服务，对话历史只保存在进程内。
func (a *app) chatService(rag config.RAGConfig) service.ChatService {
	retrieval := service.NewRetrievalService(a.embedder, a.index, rag.MaxResults, rag.MinScore)
	return service.NewChatService(
		retrieval,
		service.NewPromptBuilder(a.cfg.LLM.Prompt.Rules),
		a.llm,
		repository.NewMemoryConversationRepository(a.cfg.Conversation.MaxMessages),
		service.FallbackTexts{
			EmptyDocument: a.cfg.LLM.Prompt.EmptyDocumentText,
			NoResult:      a.cfg.LLM.Prompt.NoResultText,
		},
	)
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove every chunk of a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			ctx := cmd.Context()
			n, err := a.index.Count(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.index.DeleteByScope(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted %d chunks of %s\n", n, args[0])
			return nil
		},
	}
}
