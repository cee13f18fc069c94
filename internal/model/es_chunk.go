package model

// EsChunk 代表存储在 Elasticsearch 中的分块文档结构。
type EsChunk struct {
	ChunkID    string    `json:"chunk_id"` // 唯一标识：documentId + position + seq
	DocumentID string    `json:"document_id"`
	Position   int       `json:"position"`
	Seq        int64     `json:"seq"` // 插入序号，同分时用于排序
	Text       string    `json:"text_content"`
	Vector     []float32 `json:"vector,omitempty"`
}
