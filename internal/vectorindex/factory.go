package vectorindex

import (
	"fmt"

	"doc-whisper-go/internal/config"
	"doc-whisper-go/pkg/es"
	"doc-whisper-go/pkg/log"
)

// New 根据配置创建向量索引实现。
func New(cfg config.Config) (Index, error) {
	dims := cfg.Index.Dimensions
	log.Infof("[VectorIndex] 使用后端 %s, 维度 %d", cfg.Index.Backend, dims)

	switch cfg.Index.Backend {
	case "memory":
		return NewMemoryIndex(dims), nil
	case "sqlite":
		return NewSQLiteIndex(cfg.Index.SQLitePath, dims)
	case "pgvector":
		return NewPgVectorIndex(cfg.Index.PostgresDSN, dims)
	case "elasticsearch":
		if err := es.InitES(cfg.Elasticsearch, dims); err != nil {
			return nil, fmt.Errorf("初始化 Elasticsearch 失败: %w", err)
		}
		return NewElasticsearchIndex(es.ESClient, cfg.Elasticsearch.IndexName, dims), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
