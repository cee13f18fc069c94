package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/vectorindex"
	"doc-whisper-go/pkg/tasks"
)

type processorFixture struct {
	store *memStore
	ext   *plainExtractor
	emb   *hashEmbedder
	index *vectorindex.MemoryIndex
	repo  *memDocRepo
	proc  *Processor
	task  tasks.IngestionTask
}

func newProcessorFixture(content string) *processorFixture {
	f := &processorFixture{
		store: &memStore{objects: map[string][]byte{"documents/doc-1/a.txt": []byte(content)}},
		ext:   &plainExtractor{},
		emb:   &hashEmbedder{},
		index: vectorindex.NewMemoryIndex(3),
		repo:  newMemDocRepo(&model.Document{ID: "doc-1", Name: "a.txt", Status: model.DocumentStatusProcessing}),
		task:  tasks.IngestionTask{DocumentID: "doc-1", ObjectName: "documents/doc-1/a.txt", FileName: "a.txt"},
	}
	f.proc = NewProcessor(f.store, f.ext, NewIngestor(f.emb, f.index, 500, 50, 2), f.index, f.repo)
	return f
}

func TestProcessMarksDocumentReady(t *testing.T) {
	f := newProcessorFixture(strings.Repeat("y", 1200))
	f.ext.pages = 4

	require.NoError(t, f.proc.Process(context.Background(), f.task))

	doc := f.repo.docs["doc-1"]
	assert.Equal(t, model.DocumentStatusReady, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, 4, doc.PageCount)
	assert.Empty(t, doc.ErrorMessage)
}

func TestProcessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(strings.Repeat("y", 1200))

	require.NoError(t, f.proc.Process(ctx, f.task))
	require.NoError(t, f.proc.Process(ctx, f.task))

	n, err := f.index.Count(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestProcessPageCountFallback(t *testing.T) {
	f := newProcessorFixture("short")
	f.ext.pagesErr = errors.New("meta unavailable")

	require.NoError(t, f.proc.Process(context.Background(), f.task))
	assert.Equal(t, 1, f.repo.docs["doc-1"].PageCount)
}

func TestProcessEmptyDocument(t *testing.T) {
	f := newProcessorFixture("")

	require.NoError(t, f.proc.Process(context.Background(), f.task))
	doc := f.repo.docs["doc-1"]
	assert.Equal(t, model.DocumentStatusReady, doc.Status)
	assert.Zero(t, doc.ChunkCount)
}

func TestProcessExtractionFailure(t *testing.T) {
	f := newProcessorFixture("whatever")
	f.ext.err = errors.New("unsupported format")

	err := f.proc.Process(context.Background(), f.task)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	doc := f.repo.docs["doc-1"]
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "unsupported format")
}

func TestProcessIngestionFailure(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(strings.Repeat("z", 1200))
	f.emb.failOn = 2

	err := f.proc.Process(ctx, f.task)
	assert.ErrorIs(t, err, ErrIngestionFailed)
	assert.Equal(t, model.DocumentStatusFailed, f.repo.docs["doc-1"].Status)
	n, cerr := f.index.Count(ctx, "doc-1")
	require.NoError(t, cerr)
	assert.Zero(t, n)
}

func TestProcessMissingObject(t *testing.T) {
	f := newProcessorFixture("x")
	f.task.ObjectName = "documents/doc-1/missing.txt"

	assert.Error(t, f.proc.Process(context.Background(), f.task))
	assert.Equal(t, model.DocumentStatusFailed, f.repo.docs["doc-1"].Status)
}

// deleteCascade 模拟 DocumentService.Delete：先删分块，再删原文件与元数据。
func (f *processorFixture) deleteCascade(ctx context.Context) {
	_ = f.index.DeleteByScope(ctx, f.task.DocumentID)
	_ = f.store.Remove(ctx, f.task.ObjectName)
	_ = f.repo.Delete(f.task.DocumentID)
}

type hookExtractor struct {
	*plainExtractor
	onExtract func()
}

func (h *hookExtractor) ExtractText(ctx context.Context, r io.Reader, name string) (string, error) {
	h.onExtract()
	return h.plainExtractor.ExtractText(ctx, r, name)
}

type hookEmbedder struct {
	*hashEmbedder
	once    sync.Once
	onEmbed func()
}

func (h *hookEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	h.once.Do(h.onEmbed)
	return h.hashEmbedder.CreateEmbedding(ctx, text)
}

func assertNoEntries(t *testing.T, f *processorFixture) {
	t.Helper()
	ctx := context.Background()
	n, err := f.index.Count(ctx, f.task.DocumentID)
	require.NoError(t, err)
	assert.Zero(t, n)

	hits, err := f.index.Search(ctx, []float32{1, 1, 1}, vectorindex.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestProcessDocumentDeletedBeforeIngest(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(strings.Repeat("y", 1200))
	ext := &hookExtractor{plainExtractor: f.ext, onExtract: func() { f.deleteCascade(ctx) }}
	f.proc = NewProcessor(f.store, ext, NewIngestor(f.emb, f.index, 500, 50, 2), f.index, f.repo)

	require.NoError(t, f.proc.Process(ctx, f.task))
	assert.Zero(t, f.emb.Calls(), "deleted documents are not embedded")
	assertNoEntries(t, f)
	_, err := f.repo.FindByID(f.task.DocumentID)
	assert.Error(t, err)
}

func TestProcessDocumentDeletedDuringIngest(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(strings.Repeat("y", 1200))
	emb := &hookEmbedder{hashEmbedder: f.emb, onEmbed: func() { f.deleteCascade(ctx) }}
	f.proc = NewProcessor(f.store, f.ext, NewIngestor(emb, f.index, 500, 50, 1), f.index, f.repo)

	require.NoError(t, f.proc.Process(ctx, f.task))
	assert.Equal(t, 3, f.emb.Calls())
	assertNoEntries(t, f)
}
