package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunk_vectors (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	scope     TEXT    NOT NULL,
	position  INTEGER NOT NULL,
	text      TEXT    NOT NULL,
	dimension INTEGER NOT NULL,
	vector    BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunk_vectors_scope ON chunk_vectors(scope);
`

// SQLiteIndex 把向量以 float32 BLOB 存在本地 SQLite 中，检索时在 Go 里做精确余弦计算。
type SQLiteIndex struct {
	db        *sql.DB
	dimension int
}

// NewSQLiteIndex 打开（或创建）path 处的索引库。
func NewSQLiteIndex(path string, dimension int) (*SQLiteIndex, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 单连接串行化所有读写，保证检索不会看到半完成的删除
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteIndex{db: db, dimension: dimension}, nil
}

func (s *SQLiteIndex) Dimensions() int {
	return s.dimension
}

func (s *SQLiteIndex) Insert(ctx context.Context, entry Entry) error {
	return s.InsertBatch(ctx, []Entry{entry})
}

// InsertBatch 在一个事务中写入全部记录。
func (s *SQLiteIndex) InsertBatch(ctx context.Context, entries []Entry) error {
	if err := checkEntries(s.dimension, entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunk_vectors (scope, position, text, dimension, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Scope, e.Position, e.Text, len(e.Vector), vectorToBlob(e.Vector)); err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Search 按插入顺序读出候选记录并在内存中打分。
func (s *SQLiteIndex) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Hit, error) {
	if err := checkDimensions(s.dimension, query); err != nil {
		return nil, err
	}

	var (
		rows *sql.Rows
		err  error
	)
	if opts.Scope != "" {
		rows, err = s.db.QueryContext(ctx, `SELECT scope, position, text, vector FROM chunk_vectors WHERE scope = ? ORDER BY seq`, opts.Scope)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT scope, position, text, vector FROM chunk_vectors ORDER BY seq`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h    Hit
			blob []byte
		)
		if err := rows.Scan(&h.Scope, &h.Position, &h.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		vec, err := blobToVector(blob)
		if err != nil {
			return nil, err
		}
		h.Score = CosineSimilarity(query, vec)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return rankHits(hits, opts.MinScore, opts.MaxResults), nil
}

func (s *SQLiteIndex) Count(ctx context.Context, scope string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_vectors WHERE scope = ?`, scope).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}

func (s *SQLiteIndex) DeleteByScope(ctx context.Context, scope string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("failed to delete scope %s: %w", scope, err)
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// vectorToBlob 将 float32 切片编码为小端字节序的 BLOB
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(v))
	}
	return blob
}

// blobToVector 将 BLOB 解码为 float32 切片
func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vector, nil
}
