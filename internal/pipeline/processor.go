// Package pipeline 定义了文档入库的核心流程：切块、向量化与写入向量索引。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/repository"
	"doc-whisper-go/internal/vectorindex"
	"doc-whisper-go/pkg/log"
	"doc-whisper-go/pkg/storage"
	"doc-whisper-go/pkg/tasks"
)

// ErrExtractionFailed 表示无法从上传文件中提取文本。
var ErrExtractionFailed = errors.New("text extraction failed")

// TextExtractor 从原始文件中提取纯文本与页数，由 Tika 客户端实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
	PageCount(ctx context.Context, r io.Reader, fileName string) (int, error)
}

// Processor 封装了一次入库任务的所有依赖：下载、提取、入库与状态回写。
type Processor struct {
	store     storage.ObjectStore
	extractor TextExtractor
	ingestor  *Ingestor
	index     vectorindex.Index
	docRepo   repository.DocumentRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	store storage.ObjectStore,
	extractor TextExtractor,
	ingestor *Ingestor,
	index vectorindex.Index,
	docRepo repository.DocumentRepository,
) *Processor {
	return &Processor{
		store:     store,
		extractor: extractor,
		ingestor:  ingestor,
		index:     index,
		docRepo:   docRepo,
	}
}

// Process 执行入库任务，并把结果写回文档元数据。
// 失败时文档被标记为 FAILED 并返回错误，交由调用方（HTTP 或 Kafka 消费者）决定是否重试。
// 处理期间文档被删除时，清理本次写入的分块并视为完成。
func (p *Processor) Process(ctx context.Context, task tasks.IngestionTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, FileName: %s", task.DocumentID, task.FileName)

	pageCount, chunkCount, err := p.run(ctx, task)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return p.discard(ctx, task.DocumentID)
	}
	if err != nil {
		log.Errorf("[Processor] 文档处理失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		uerr := p.docRepo.UpdateProcessingResult(task.DocumentID, model.DocumentStatusFailed, pageCount, 0, err.Error())
		if errors.Is(uerr, repository.ErrDocumentNotFound) {
			return p.discard(ctx, task.DocumentID)
		}
		if uerr != nil {
			log.Errorf("[Processor] 更新文档状态失败, DocumentID: %s, Error: %v", task.DocumentID, uerr)
		}
		return err
	}

	err = p.docRepo.UpdateProcessingResult(task.DocumentID, model.DocumentStatusReady, pageCount, chunkCount, "")
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return p.discard(ctx, task.DocumentID)
	}
	if err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	log.Infof("[Processor] 文档处理成功, DocumentID: %s, 页数: %d, 分块数: %d", task.DocumentID, pageCount, chunkCount)
	return nil
}

// discard 删除已不存在的文档在索引中的全部分块，保证删除级联不被并发入库破坏。
func (p *Processor) discard(ctx context.Context, documentID string) error {
	log.Warnf("[Processor] 文档 %s 在处理期间已被删除, 清理其分块", documentID)
	if err := p.index.DeleteByScope(ctx, documentID); err != nil {
		return fmt.Errorf("清理已删除文档 %s 的分块失败: %w", documentID, err)
	}
	return nil
}

func (p *Processor) run(ctx context.Context, task tasks.IngestionTask) (pageCount, chunkCount int, err error) {
	// 1. 从对象存储下载文件
	object, err := p.store.Get(ctx, task.ObjectName)
	if err != nil {
		return 0, 0, fmt.Errorf("下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return 0, 0, fmt.Errorf("读取文件内容失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", buf.Len())

	// 2. 提取文本与页数
	text, err := p.extractor.ExtractText(ctx, bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	pageCount = 1
	if n, perr := p.extractor.PageCount(ctx, bytes.NewReader(buf.Bytes()), task.FileName); perr != nil {
		log.Warnf("[Processor] 读取页数失败, 使用默认值 1: %v", perr)
	} else if n > 0 {
		pageCount = n
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符, 页数: %d", utf8.RuneCountInString(text), pageCount)

	// 3. 清理旧分块，使重复处理同一文档保持幂等
	if err := p.index.DeleteByScope(ctx, task.DocumentID); err != nil {
		return pageCount, 0, fmt.Errorf("清理旧分块失败: %w", err)
	}

	// 4. 入库前确认文档仍然存在
	if _, err := p.docRepo.FindByID(task.DocumentID); err != nil {
		return pageCount, 0, err
	}

	// 5. 切块、向量化并写入索引
	chunkCount, err = p.ingestor.Ingest(ctx, task.DocumentID, text)
	if err != nil {
		return pageCount, 0, err
	}
	return pageCount, chunkCount, nil
}
