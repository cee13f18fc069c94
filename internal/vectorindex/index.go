// Package vectorindex 定义了按文档作用域存储与检索分块向量的索引抽象及其实现。
package vectorindex

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch 表示向量长度与索引配置的维度不一致。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrZeroVector 表示向量各分量全为 0，余弦相似度无定义。
	ErrZeroVector = errors.New("zero vector has no direction")
)

// Entry 是索引中的一条记录：向量、原文以及所属文档的作用域标签。
type Entry struct {
	Scope    string
	Position int
	Text     string
	Vector   []float32
}

// Hit 是一次检索命中的分块及其余弦相似度。
type Hit struct {
	Scope    string  `json:"documentId"`
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// SearchOptions 控制检索范围与过滤条件。
type SearchOptions struct {
	// Scope 为空时检索全部文档。
	Scope      string
	MaxResults int
	MinScore   float64
}

// Index 是向量索引需要提供的全部能力。
// 实现必须保证单个操作的原子性：检索不会观察到进行到一半的删除或批量写入。
type Index interface {
	// Dimensions 返回索引配置的向量维度。
	Dimensions() int
	// Insert 追加一条记录。
	Insert(ctx context.Context, entry Entry) error
	// InsertBatch 原子地追加一批记录：要么全部可见，要么全部不可见。
	InsertBatch(ctx context.Context, entries []Entry) error
	// Search 按余弦相似度降序返回命中，同分时先插入者优先。
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Hit, error)
	// Count 返回某个作用域下的记录数。
	Count(ctx context.Context, scope string) (int, error)
	// DeleteByScope 删除作用域下的全部记录，重复删除不报错。
	DeleteByScope(ctx context.Context, scope string) error
	Close() error
}

// checkDimensions 校验向量维度，并拒绝全零向量，使各后端的打分行为一致。
func checkDimensions(want int, vector []float32) error {
	if len(vector) != want {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, want, len(vector))
	}
	for _, v := range vector {
		if v != 0 {
			return nil
		}
	}
	return ErrZeroVector
}

func checkEntries(want int, entries []Entry) error {
	for i, e := range entries {
		if err := checkDimensions(want, e.Vector); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}
