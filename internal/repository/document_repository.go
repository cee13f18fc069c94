// Package repository 提供了数据访问层的实现。
package repository

import (
	"errors"

	"gorm.io/gorm"

	"doc-whisper-go/internal/model"
)

// ErrDocumentNotFound 表示文档元数据不存在。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id string) (*model.Document, error)
	FindAll() ([]model.Document, error)
	// UpdateProcessingResult 只更新由入库流水线产生的字段。
	UpdateProcessingResult(id string, status, pageCount, chunkCount int, errMsg string) error
	Delete(id string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByID 按 ID 查询文档，不存在时返回 ErrDocumentNotFound。
func (r *documentRepository) FindByID(id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindAll 按上传时间倒序返回全部文档。
func (r *documentRepository) FindAll() ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Order("uploaded_at DESC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) UpdateProcessingResult(id string, status, pageCount, chunkCount int, errMsg string) error {
	res := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"page_count":    pageCount,
		"chunk_count":   chunkCount,
		"error_message": errMsg,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// Delete 删除文档元数据，文档不存在时不报错。
func (r *documentRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Document{}).Error
}
