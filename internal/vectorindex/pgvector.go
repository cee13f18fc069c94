package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
)

// PgVectorIndex 基于 PostgreSQL + pgvector 扩展的向量索引。
// 不创建 HNSW/IVFFlat 索引，查询走顺序扫描，得到的是精确余弦相似度。
type PgVectorIndex struct {
	db        *sql.DB
	dimension int
}

// NewPgVectorIndex 连接数据库并确保 embeddings 表存在。
func NewPgVectorIndex(dsn string, dimension int) (*PgVectorIndex, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	idx := &PgVectorIndex{db: db, dimension: dimension}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

func (p *PgVectorIndex) migrate() error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			id          BIGSERIAL PRIMARY KEY,
			document_id TEXT NOT NULL,
			position    INTEGER NOT NULL,
			text        TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT NOW()
		)`, p.dimension),
		`CREATE INDEX IF NOT EXISTS idx_embeddings_document_id ON embeddings (document_id)`,
	}
	for _, m := range migrations {
		if _, err := p.db.Exec(m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

func (p *PgVectorIndex) Dimensions() int {
	return p.dimension
}

func (p *PgVectorIndex) Insert(ctx context.Context, entry Entry) error {
	return p.InsertBatch(ctx, []Entry{entry})
}

// InsertBatch 在一个事务中写入全部记录。
func (p *PgVectorIndex) InsertBatch(ctx context.Context, entries []Entry) error {
	if err := checkEntries(p.dimension, entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO embeddings (document_id, position, text, embedding) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Scope, e.Position, e.Text, pgvector.NewVector(e.Vector)); err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Search 在 SQL 内完成作用域过滤、阈值过滤与排序，同分按自增 id（插入顺序）排序。
func (p *PgVectorIndex) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Hit, error) {
	if err := checkDimensions(p.dimension, query); err != nil {
		return nil, err
	}
	limit := sql.NullInt64{Int64: int64(opts.MaxResults), Valid: opts.MaxResults > 0}

	rows, err := p.db.QueryContext(ctx, `
		SELECT document_id, position, text, 1 - (embedding <=> $1) AS score
		FROM embeddings
		WHERE ($2 = '' OR document_id = $2)
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1, id
		LIMIT $4
	`, pgvector.NewVector(query), opts.Scope, opts.MinScore, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Scope, &h.Position, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *PgVectorIndex) Count(ctx context.Context, scope string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE document_id = $1`, scope).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (p *PgVectorIndex) DeleteByScope(ctx context.Context, scope string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = $1`, scope); err != nil {
		return fmt.Errorf("delete scope %s: %w", scope, err)
	}
	return nil
}

func (p *PgVectorIndex) Close() error {
	return p.db.Close()
}
