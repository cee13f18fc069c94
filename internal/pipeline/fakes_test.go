package pipeline

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"io"
	"sync"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/repository"
)

var errEmbedderDown = errors.New("embedder down")

// hashEmbedder 把文本确定性地映射到 3 维向量，可在第 failOn 次调用时失败。
type hashEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn int
}

func (h *hashEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	h.calls++
	call := h.calls
	h.mu.Unlock()
	if h.failOn > 0 && call == h.failOn {
		return nil, errEmbedderDown
	}
	f := fnv.New32a()
	_, _ = f.Write([]byte(text))
	s := f.Sum32()
	return []float32{float32(s%97) + 1, float32(s%89) + 1, float32(s%83) + 1}, nil
}

func (h *hashEmbedder) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[name] = data
	return nil
}

func (m *memStore) Get(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := m.objects[name]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Remove(_ context.Context, name string) error {
	delete(m.objects, name)
	return nil
}

// plainExtractor 原样返回文件内容。
type plainExtractor struct {
	err      error
	pages    int
	pagesErr error
}

func (p *plainExtractor) ExtractText(_ context.Context, r io.Reader, _ string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	data, err := io.ReadAll(r)
	return string(data), err
}

func (p *plainExtractor) PageCount(context.Context, io.Reader, string) (int, error) {
	return p.pages, p.pagesErr
}

type memDocRepo struct {
	docs map[string]*model.Document
}

func newMemDocRepo(docs ...*model.Document) *memDocRepo {
	r := &memDocRepo{docs: map[string]*model.Document{}}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *memDocRepo) Create(doc *model.Document) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *memDocRepo) FindByID(id string) (*model.Document, error) {
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	return d, nil
}

func (r *memDocRepo) FindAll() ([]model.Document, error) {
	var out []model.Document
	for _, d := range r.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (r *memDocRepo) UpdateProcessingResult(id string, status, pageCount, chunkCount int, errMsg string) error {
	d, ok := r.docs[id]
	if !ok {
		return repository.ErrDocumentNotFound
	}
	d.Status, d.PageCount, d.ChunkCount, d.ErrorMessage = status, pageCount, chunkCount, errMsg
	return nil
}

func (r *memDocRepo) Delete(id string) error {
	delete(r.docs, id)
	return nil
}
