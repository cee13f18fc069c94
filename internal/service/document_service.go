package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/repository"
	"doc-whisper-go/internal/vectorindex"
	"doc-whisper-go/pkg/log"
	"doc-whisper-go/pkg/storage"
	"doc-whisper-go/pkg/tasks"
)

// ErrEmptyFile 表示上传的文件没有内容。
var ErrEmptyFile = errors.New("uploaded file is empty")

// TaskRunner 同步执行一个入库任务，由 pipeline.Processor 实现。
type TaskRunner interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
}

// TaskPublisher 把入库任务交给后台消费者，由 Kafka 生产者实现。
type TaskPublisher interface {
	PublishIngestionTask(ctx context.Context, task tasks.IngestionTask) error
}

// DocumentService 定义了文档的上传、查询与级联删除。
type DocumentService interface {
	Upload(ctx context.Context, fileName, contentType string, size int64, r io.Reader) (*model.Document, error)
	List() ([]model.Document, error)
	Get(id string) (*model.Document, error)
	Delete(ctx context.Context, id string) error
}

type documentService struct {
	docRepo   repository.DocumentRepository
	store     storage.ObjectStore
	index     vectorindex.Index
	runner    TaskRunner
	publisher TaskPublisher
}

// NewDocumentService 创建文档服务；publisher 非 nil 时上传后异步入库，否则同步执行 runner。
func NewDocumentService(docRepo repository.DocumentRepository, store storage.ObjectStore, index vectorindex.Index, runner TaskRunner, publisher TaskPublisher) DocumentService {
	return &documentService{
		docRepo:   docRepo,
		store:     store,
		index:     index,
		runner:    runner,
		publisher: publisher,
	}
}

// Upload 保存原文件与元数据并触发入库。
// 同步模式下入库失败时仍返回已标记为 FAILED 的文档以及错误。
func (s *documentService) Upload(ctx context.Context, fileName, contentType string, size int64, r io.Reader) (*model.Document, error) {
	if size <= 0 {
		return nil, ErrEmptyFile
	}
	name := filepath.Base(fileName)
	doc := &model.Document{
		ID:          uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Size:        size,
		Status:      model.DocumentStatusProcessing,
	}
	doc.ObjectName = fmt.Sprintf("documents/%s/%s", doc.ID, name)

	if err := s.store.Put(ctx, doc.ObjectName, r, size, contentType); err != nil {
		return nil, err
	}
	if err := s.docRepo.Create(doc); err != nil {
		if rmErr := s.store.Remove(ctx, doc.ObjectName); rmErr != nil {
			log.Warnf("[DocumentService] 清理孤立对象 %s 失败: %v", doc.ObjectName, rmErr)
		}
		return nil, fmt.Errorf("保存文档元数据失败: %w", err)
	}
	log.Infof("[DocumentService] 文档已上传, id=%s, name=%s, size=%d", doc.ID, doc.Name, doc.Size)

	task := tasks.IngestionTask{DocumentID: doc.ID, ObjectName: doc.ObjectName, FileName: doc.Name}
	if s.publisher != nil {
		if err := s.publisher.PublishIngestionTask(ctx, task); err != nil {
			_ = s.docRepo.UpdateProcessingResult(doc.ID, model.DocumentStatusFailed, 0, 0, err.Error())
			return nil, fmt.Errorf("发送入库任务失败: %w", err)
		}
		return doc, nil
	}

	procErr := s.runner.Process(ctx, task)
	updated, err := s.docRepo.FindByID(doc.ID)
	if err != nil {
		return nil, err
	}
	return updated, procErr
}

func (s *documentService) List() ([]model.Document, error) {
	return s.docRepo.FindAll()
}

func (s *documentService) Get(id string) (*model.Document, error) {
	return s.docRepo.FindByID(id)
}

// Delete 依次删除索引分块、原文件和元数据；任一步失败都可安全重试。
func (s *documentService) Delete(ctx context.Context, id string) error {
	doc, err := s.docRepo.FindByID(id)
	if err != nil {
		return err
	}
	if err := s.index.DeleteByScope(ctx, id); err != nil {
		return fmt.Errorf("删除文档分块失败: %w", err)
	}
	if doc.ObjectName != "" {
		if err := s.store.Remove(ctx, doc.ObjectName); err != nil {
			return err
		}
	}
	if err := s.docRepo.Delete(id); err != nil {
		return fmt.Errorf("删除文档元数据失败: %w", err)
	}
	log.Infof("[DocumentService] 文档已删除, id=%s", id)
	return nil
}
