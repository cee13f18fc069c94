package vectorindex

import (
	"context"
	"sync"
)

// MemoryIndex 是进程内的精确向量索引，用于开发与测试。
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   []Entry
}

// NewMemoryIndex 创建一个指定维度的内存索引。
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{dimension: dimension}
}

func (m *MemoryIndex) Dimensions() int {
	return m.dimension
}

// Insert 追加一条记录。
func (m *MemoryIndex) Insert(ctx context.Context, entry Entry) error {
	return m.InsertBatch(ctx, []Entry{entry})
}

// InsertBatch 在持有写锁的情况下一次性追加全部记录。
func (m *MemoryIndex) InsertBatch(_ context.Context, entries []Entry) error {
	if err := checkEntries(m.dimension, entries); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		m.entries = append(m.entries, e)
	}
	return nil
}

// Search 对全部（或指定作用域的）记录做暴力余弦检索。
func (m *MemoryIndex) Search(_ context.Context, query []float32, opts SearchOptions) ([]Hit, error) {
	if err := checkDimensions(m.dimension, query); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		if opts.Scope != "" && e.Scope != opts.Scope {
			continue
		}
		hits = append(hits, Hit{
			Scope:    e.Scope,
			Position: e.Position,
			Text:     e.Text,
			Score:    CosineSimilarity(query, e.Vector),
		})
	}
	return rankHits(hits, opts.MinScore, opts.MaxResults), nil
}

func (m *MemoryIndex) Count(_ context.Context, scope string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.Scope == scope {
			n++
		}
	}
	return n, nil
}

// DeleteByScope 删除作用域下的全部记录。
func (m *MemoryIndex) DeleteByScope(_ context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Scope != scope {
			kept = append(kept, e)
		}
	}
	// 释放被删除记录的引用
	for i := len(kept); i < len(m.entries); i++ {
		m.entries[i] = Entry{}
	}
	m.entries = kept
	return nil
}

// Close 对内存索引无操作。
func (m *MemoryIndex) Close() error {
	return nil
}

// Len 返回索引中的记录总数。
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
