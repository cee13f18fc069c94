package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"doc-whisper-go/internal/vectorindex"
	"doc-whisper-go/pkg/embedding"
	"doc-whisper-go/pkg/log"
)

// ErrIngestionFailed 表示文档入库失败，索引中不会残留该文档的任何分块。
var ErrIngestionFailed = errors.New("ingestion failed")

// Ingestor 负责切块、向量化并把分块写入向量索引。
type Ingestor struct {
	embedder    embedding.Client
	index       vectorindex.Index
	chunkSize   int
	overlap     int
	concurrency int
}

// NewIngestor 创建 Ingestor，concurrency 小于 1 时按 1 处理。
func NewIngestor(embedder embedding.Client, index vectorindex.Index, chunkSize, overlap, concurrency int) *Ingestor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Ingestor{
		embedder:    embedder,
		index:       index,
		chunkSize:   chunkSize,
		overlap:     overlap,
		concurrency: concurrency,
	}
}

// Ingest 将 text 切块并以 documentID 为作用域写入索引，返回写入的分块数。
// 先向量化全部分块再一次性写入，任何一步失败都不会留下部分数据。
func (in *Ingestor) Ingest(ctx context.Context, documentID, text string) (int, error) {
	chunks, err := SplitText(text, in.chunkSize, in.overlap)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIngestionFailed, err)
	}
	if len(chunks) == 0 {
		log.Infof("[Ingestor] 文档 %s 无可入库文本", documentID)
		return 0, nil
	}
	log.Infof("[Ingestor] 文档 %s 切分为 %d 个分块, 开始向量化", documentID, len(chunks))

	entries := make([]vectorindex.Entry, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := in.embedder.CreateEmbedding(gctx, chunk)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			entries[i] = vectorindex.Entry{Scope: documentID, Position: i, Text: chunk, Vector: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("[Ingestor] 文档 %s 向量化失败: %v", documentID, err)
		return 0, fmt.Errorf("%w: %w", ErrIngestionFailed, err)
	}

	if err := in.index.InsertBatch(ctx, entries); err != nil {
		log.Errorf("[Ingestor] 文档 %s 写入索引失败: %v", documentID, err)
		if delErr := in.index.DeleteByScope(ctx, documentID); delErr != nil {
			log.Errorf("[Ingestor] 回滚文档 %s 的分块失败: %v", documentID, delErr)
		}
		return 0, fmt.Errorf("%w: %w", ErrIngestionFailed, err)
	}

	log.Infof("[Ingestor] 文档 %s 入库完成, 分块数: %d", documentID, len(entries))
	return len(entries), nil
}
