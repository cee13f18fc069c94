package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/pkg/log"
)

// ElasticsearchIndex 使用 Elasticsearch 的 dense_vector 字段存储分块，
// 检索时用 script_score 做精确的 cosineSimilarity 计算，而非 kNN 近似检索。
type ElasticsearchIndex struct {
	client    *elasticsearch.Client
	indexName string
	dimension int
	// seq 记录写入顺序，作为同分时的排序依据。它只在本进程内单调，
	// 因此假定同一个 ES 索引只有一个写入进程。
	seq atomic.Int64
}

// NewElasticsearchIndex 基于已初始化的客户端创建索引实现，索引 mapping 由 pkg/es 负责创建。
func NewElasticsearchIndex(client *elasticsearch.Client, indexName string, dimension int) *ElasticsearchIndex {
	idx := &ElasticsearchIndex{client: client, indexName: indexName, dimension: dimension}
	idx.seq.Store(time.Now().UnixNano())
	return idx
}

func (e *ElasticsearchIndex) Dimensions() int {
	return e.dimension
}

func (e *ElasticsearchIndex) Insert(ctx context.Context, entry Entry) error {
	return e.InsertBatch(ctx, []Entry{entry})
}

// InsertBatch 通过 _bulk 写入全部记录；若有任何条目失败，则删除本批涉及的作用域作为补偿。
func (e *ElasticsearchIndex) InsertBatch(ctx context.Context, entries []Entry) error {
	if err := checkEntries(e.dimension, entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var body bytes.Buffer
	scopes := make(map[string]struct{})
	for _, en := range entries {
		seq := e.seq.Add(1)
		doc := model.EsChunk{
			ChunkID:    fmt.Sprintf("%s_%d_%d", en.Scope, en.Position, seq),
			DocumentID: en.Scope,
			Position:   en.Position,
			Seq:        seq,
			Text:       en.Text,
			Vector:     en.Vector,
		}
		meta := map[string]any{"index": map[string]any{"_index": e.indexName, "_id": doc.ChunkID}}
		if err := json.NewEncoder(&body).Encode(meta); err != nil {
			return err
		}
		if err := json.NewEncoder(&body).Encode(doc); err != nil {
			return err
		}
		scopes[en.Scope] = struct{}{}
	}

	req := esapi.BulkRequest{
		Body:    &body,
		Refresh: "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[ElasticsearchIndex] 批量写入返回错误: %s", res.String())
		return errors.New("elasticsearch bulk request returned an error")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		log.Warnf("[ElasticsearchIndex] 批量写入存在失败条目, 删除本批作用域以回滚")
		for scope := range scopes {
			if err := e.DeleteByScope(ctx, scope); err != nil {
				log.Errorf("[ElasticsearchIndex] 回滚作用域 %s 失败: %v", scope, err)
			}
		}
		return errors.New("elasticsearch bulk insert partially failed")
	}
	return nil
}

// Search 执行 script_score 查询，分数加 1 以满足 ES 非负分数要求，返回前再减回去。
func (e *ElasticsearchIndex) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Hit, error) {
	if err := checkDimensions(e.dimension, query); err != nil {
		return nil, err
	}

	var filter any = map[string]any{"match_all": map[string]any{}}
	if opts.Scope != "" {
		filter = map[string]any{
			"bool": map[string]any{
				"filter": []any{map[string]any{"term": map[string]any{"document_id": opts.Scope}}},
			},
		}
	}
	size := opts.MaxResults
	if size <= 0 {
		size = 10000
	}
	esQuery := map[string]any{
		"size": size,
		"query": map[string]any{
			"script_score": map[string]any{
				"query": filter,
				"script": map[string]any{
					"source": "cosineSimilarity(params.query_vector, 'vector') + 1.0",
					"params": map[string]any{"query_vector": query},
				},
			},
		},
		"min_score": opts.MinScore + 1.0,
		"sort": []any{
			map[string]any{"_score": "desc"},
			map[string]any{"seq": "asc"},
		},
		"track_scores": true,
		"_source":      []string{"document_id", "position", "text_content"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[ElasticsearchIndex] 检索返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsChunk `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, Hit{
			Scope:    h.Source.DocumentID,
			Position: h.Source.Position,
			Text:     h.Source.Text,
			Score:    h.Score - 1.0,
		})
	}
	return hits, nil
}

func (e *ElasticsearchIndex) Count(ctx context.Context, scope string) (int, error) {
	body := fmt.Sprintf(`{"query":{"term":{"document_id":%q}}}`, scope)
	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(e.indexName),
		e.client.Count.WithBody(strings.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count returned an error: %s", res.Status())
	}

	var countResp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return countResp.Count, nil
}

// DeleteByScope 使用 _delete_by_query 删除作用域下的全部分块，并立即刷新。
func (e *ElasticsearchIndex) DeleteByScope(ctx context.Context, scope string) error {
	body := fmt.Sprintf(`{"query":{"term":{"document_id":%q}}}`, scope)
	res, err := e.client.DeleteByQuery(
		[]string{e.indexName},
		strings.NewReader(body),
		e.client.DeleteByQuery.WithContext(ctx),
		e.client.DeleteByQuery.WithRefresh(true),
		e.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete_by_query failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ElasticsearchIndex] 删除作用域 %s 返回错误: %s", scope, res.String())
		return fmt.Errorf("elasticsearch delete_by_query returned an error: %s", res.Status())
	}
	return nil
}

// Close 对 HTTP 客户端无操作。
func (e *ElasticsearchIndex) Close() error {
	return nil
}
