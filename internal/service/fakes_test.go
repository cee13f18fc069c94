package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/repository"
	"doc-whisper-go/pkg/llm"
	"doc-whisper-go/pkg/tasks"
)

// tableEmbedder 按文本查表返回向量并记录调用次数。
type tableEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

func (e *tableEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return []float32{0, 0, 1}, nil
	}
	return v, nil
}

type fakeLLM struct {
	answer   string
	chunks   []string
	err      error
	calls    int
	messages []llm.Message
}

func (f *fakeLLM) Generate(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.calls++
	f.messages = messages
	return f.answer, f.err
}

func (f *fakeLLM) StreamChatMessages(_ context.Context, messages []llm.Message, _ *llm.GenerationParams, w llm.MessageWriter) error {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return f.err
	}
	for _, c := range f.chunks {
		if err := w.WriteMessage(1, []byte(c)); err != nil {
			return err
		}
	}
	return nil
}

type recordingWriter struct {
	frames []string
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.frames = append(w.frames, string(data))
	return nil
}

type memStore struct {
	objects   map[string][]byte
	removeErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
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
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.objects, name)
	return nil
}

type memDocRepo struct {
	docs map[string]*model.Document
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{docs: map[string]*model.Document{}}
}

func (r *memDocRepo) Create(doc *model.Document) error {
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *memDocRepo) FindByID(id string) (*model.Document, error) {
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDocRepo) FindAll() ([]model.Document, error) {
	out := make([]model.Document, 0, len(r.docs))
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

// stubRunner 模拟同步入库：直接回写结果。
type stubRunner struct {
	repo  *memDocRepo
	err   error
	tasks []tasks.IngestionTask
}

func (s *stubRunner) Process(_ context.Context, task tasks.IngestionTask) error {
	s.tasks = append(s.tasks, task)
	if s.err != nil {
		_ = s.repo.UpdateProcessingResult(task.DocumentID, model.DocumentStatusFailed, 0, 0, s.err.Error())
		return s.err
	}
	return s.repo.UpdateProcessingResult(task.DocumentID, model.DocumentStatusReady, 1, 2, "")
}

type stubPublisher struct {
	err   error
	tasks []tasks.IngestionTask
}

func (p *stubPublisher) PublishIngestionTask(_ context.Context, task tasks.IngestionTask) error {
	p.tasks = append(p.tasks, task)
	return p.err
}
