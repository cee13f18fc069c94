package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/repository"
	"doc-whisper-go/internal/vectorindex"
)

func TestUploadInline(t *testing.T) {
	ctx := context.Background()
	repo := newMemDocRepo()
	store := newMemStore()
	runner := &stubRunner{repo: repo}
	svc := NewDocumentService(repo, store, vectorindex.NewMemoryIndex(3), runner, nil)

	doc, err := svc.Upload(ctx, "../../notes.txt", "text/plain", 5, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Len(t, doc.ID, 36)
	assert.Equal(t, "notes.txt", doc.Name)
	assert.Equal(t, model.DocumentStatusReady, doc.Status)
	assert.Equal(t, 2, doc.ChunkCount)
	assert.Equal(t, "documents/"+doc.ID+"/notes.txt", doc.ObjectName)
	assert.Equal(t, []byte("hello"), store.objects[doc.ObjectName])
	require.Len(t, runner.tasks, 1)
	assert.Equal(t, doc.ID, runner.tasks[0].DocumentID)
}

func TestUploadInlineFailureReturnsFailedDocument(t *testing.T) {
	repo := newMemDocRepo()
	runner := &stubRunner{repo: repo, err: errors.New("tika down")}
	svc := NewDocumentService(repo, newMemStore(), vectorindex.NewMemoryIndex(3), runner, nil)

	doc, err := svc.Upload(context.Background(), "a.pdf", "application/pdf", 3, strings.NewReader("pdf"))
	require.Error(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Equal(t, "tika down", doc.ErrorMessage)
}

func TestUploadAsync(t *testing.T) {
	repo := newMemDocRepo()
	runner := &stubRunner{repo: repo}
	pub := &stubPublisher{}
	svc := NewDocumentService(repo, newMemStore(), vectorindex.NewMemoryIndex(3), runner, pub)

	doc, err := svc.Upload(context.Background(), "a.txt", "text/plain", 1, strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusProcessing, doc.Status)
	require.Len(t, pub.tasks, 1)
	assert.Equal(t, doc.ObjectName, pub.tasks[0].ObjectName)
	assert.Empty(t, runner.tasks)
}

func TestUploadAsyncPublishFailure(t *testing.T) {
	repo := newMemDocRepo()
	pub := &stubPublisher{err: errors.New("broker unavailable")}
	svc := NewDocumentService(repo, newMemStore(), vectorindex.NewMemoryIndex(3), nil, pub)

	_, err := svc.Upload(context.Background(), "a.txt", "text/plain", 1, strings.NewReader("x"))
	require.Error(t, err)
	docs, _ := repo.FindAll()
	require.Len(t, docs, 1)
	assert.Equal(t, model.DocumentStatusFailed, docs[0].Status)
}

func TestUploadEmptyFile(t *testing.T) {
	svc := NewDocumentService(newMemDocRepo(), newMemStore(), vectorindex.NewMemoryIndex(3), nil, nil)
	_, err := svc.Upload(context.Background(), "a.txt", "text/plain", 0, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	repo := newMemDocRepo()
	store := newMemStore()
	idx := vectorindex.NewMemoryIndex(3)
	svc := NewDocumentService(repo, store, idx, nil, nil)

	require.NoError(t, repo.Create(&model.Document{ID: "doc-1", Name: "a.txt", ObjectName: "documents/doc-1/a.txt"}))
	store.objects["documents/doc-1/a.txt"] = []byte("a")
	require.NoError(t, idx.InsertBatch(ctx, []vectorindex.Entry{
		{Scope: "doc-1", Text: "one", Vector: []float32{1, 0, 0}},
		{Scope: "doc-2", Text: "other", Vector: []float32{1, 0, 0}},
	}))

	require.NoError(t, svc.Delete(ctx, "doc-1"))

	n, err := idx.Count(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = idx.Count(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotContains(t, store.objects, "documents/doc-1/a.txt")
	_, err = svc.Get("doc-1")
	assert.ErrorIs(t, err, repository.ErrDocumentNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, "doc-1"), repository.ErrDocumentNotFound)
}

func TestDeleteKeepsMetadataWhenStorageFails(t *testing.T) {
	ctx := context.Background()
	repo := newMemDocRepo()
	store := newMemStore()
	store.removeErr = errors.New("minio unreachable")
	idx := vectorindex.NewMemoryIndex(3)
	svc := NewDocumentService(repo, store, idx, nil, nil)

	require.NoError(t, repo.Create(&model.Document{ID: "doc-1", ObjectName: "documents/doc-1/a.txt"}))
	require.NoError(t, idx.Insert(ctx, vectorindex.Entry{Scope: "doc-1", Text: "one", Vector: []float32{1, 0, 0}}))

	require.Error(t, svc.Delete(ctx, "doc-1"))
	n, err := idx.Count(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, n, "index entries are removed first")
	_, err = svc.Get("doc-1")
	assert.NoError(t, err, "metadata survives so the delete can be retried")
}
