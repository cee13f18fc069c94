// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"

	"doc-whisper-go/internal/vectorindex"
	"doc-whisper-go/pkg/embedding"
	"doc-whisper-go/pkg/log"
)

// ErrEmbeddingFailed 表示问题向量化失败，检索不会重试。
var ErrEmbeddingFailed = errors.New("embedding failed")

// Outcome 区分检索的三种结果，两种空结果都不是错误。
type Outcome string

const (
	OutcomeMatched         Outcome = "MATCHED"
	OutcomeNoRelevantMatch Outcome = "NO_RELEVANT_MATCH"
	OutcomeEmptyScope      Outcome = "EMPTY_SCOPE"
)

// RetrieveOptions 控制一次检索；零值字段使用服务的默认配置。
type RetrieveOptions struct {
	// DocumentID 为空时在全部文档中检索。
	DocumentID string
	MaxResults int
	MinScore   *float64
}

// RetrievalResult 是检索结果，Passages 按相关度降序排列。
type RetrievalResult struct {
	Outcome  Outcome           `json:"outcome"`
	Passages []vectorindex.Hit `json:"passages"`
}

// Texts 按排名顺序返回命中分块的原文。
func (r *RetrievalResult) Texts() []string {
	texts := make([]string, len(r.Passages))
	for i, p := range r.Passages {
		texts[i] = p.Text
	}
	return texts
}

// RetrievalService 定义了语义检索的接口。
type RetrievalService interface {
	Retrieve(ctx context.Context, question string, opts RetrieveOptions) (*RetrievalResult, error)
}

type retrievalService struct {
	embedder   embedding.Client
	index      vectorindex.Index
	maxResults int
	minScore   float64
}

// NewRetrievalService 创建检索服务，maxResults/minScore 是未显式指定时的默认值。
func NewRetrievalService(embedder embedding.Client, index vectorindex.Index, maxResults int, minScore float64) RetrievalService {
	return &retrievalService{embedder: embedder, index: index, maxResults: maxResults, minScore: minScore}
}

// Retrieve 先检查作用域是否为空，再向量化问题并检索。
func (s *retrievalService) Retrieve(ctx context.Context, question string, opts RetrieveOptions) (*RetrievalResult, error) {
	maxResults := s.maxResults
	if opts.MaxResults > 0 {
		maxResults = opts.MaxResults
	}
	minScore := s.minScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	if opts.DocumentID != "" {
		n, err := s.index.Count(ctx, opts.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("failed to count chunks of %s: %w", opts.DocumentID, err)
		}
		if n == 0 {
			log.Warnf("[RetrievalService] 文档 %s 在索引中没有任何分块", opts.DocumentID)
			return &RetrievalResult{Outcome: OutcomeEmptyScope, Passages: []vectorindex.Hit{}}, nil
		}
	}

	queryVector, err := s.embedder.CreateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	hits, err := s.index.Search(ctx, queryVector, vectorindex.SearchOptions{
		Scope:      opts.DocumentID,
		MaxResults: maxResults,
		MinScore:   minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) == 0 {
		log.Infof("[RetrievalService] 无满足阈值 %.2f 的命中, documentId=%q", minScore, opts.DocumentID)
		return &RetrievalResult{Outcome: OutcomeNoRelevantMatch, Passages: []vectorindex.Hit{}}, nil
	}

	log.Infof("[RetrievalService] 检索到 %d 个分块, 最高分 %.4f", len(hits), hits[0].Score)
	return &RetrievalResult{Outcome: OutcomeMatched, Passages: hits}, nil
}
