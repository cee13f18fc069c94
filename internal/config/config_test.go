package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
embedding:
  model: "all-minilm"
  dimensions: 384
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.MaxResults)
	assert.Equal(t, 0.0, cfg.RAG.MinScore)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, 384, cfg.Index.Dimensions, "index dimensions fall back to embedding dimensions")
	assert.Equal(t, 10, cfg.Conversation.MaxMessages)
	assert.False(t, cfg.Ingestion.Async)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
index:
  backend: "sqlite"
  dimensions: 8
  sqlite_path: "/tmp/x.db"
rag:
  chunk_size: 200
  chunk_overlap: 20
  min_score: 0.6
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, 8, cfg.Index.Dimensions)
	assert.Equal(t, 200, cfg.RAG.ChunkSize)
	assert.Equal(t, 0.6, cfg.RAG.MinScore)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
index:
  dimensions: 4
`)
	t.Setenv("DOCWHISPER_RAG_MAX_RESULTS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RAG.MaxResults)
}

func TestLoad_InvalidOverlap(t *testing.T) {
	path := writeConfig(t, `
index:
  dimensions: 4
rag:
  chunk_size: 100
  chunk_overlap: 100
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnknownBackend(t *testing.T) {
	path := writeConfig(t, `
index:
  backend: "faiss"
  dimensions: 4
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_DimensionsMismatch(t *testing.T) {
	path := writeConfig(t, `
embedding:
  dimensions: 1024
index:
  dimensions: 384
`)

	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
embedding:
  dimensions: 1024
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Index.Dimensions)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
