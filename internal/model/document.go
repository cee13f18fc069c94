// Package model 定义了与数据库表及索引文档对应的 Go 结构体。
package model

import "time"

// 文档处理状态
const (
	DocumentStatusProcessing = 0
	DocumentStatusReady      = 1
	DocumentStatusFailed     = 2
)

// Document 对应于数据库中的 documents 表，记录上传文件的元数据与入库状态。
type Document struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	ContentType  string    `gorm:"type:varchar(127)" json:"type"`
	Size         int64     `gorm:"not null" json:"size"`
	ObjectName   string    `gorm:"type:varchar(512)" json:"-"`
	PageCount    int       `gorm:"not null;default:0" json:"pageCount"`
	ChunkCount   int       `gorm:"not null;default:0" json:"chunkCount"`
	Status       int       `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: processing, 1: ready, 2: failed
	ErrorMessage string    `gorm:"type:text" json:"errorMessage,omitempty"`
	UploadedAt   time.Time `gorm:"autoCreateTime" json:"uploadedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentDTO 是返回给前端的文档结构，上传时间使用本地时间格式。
type DocumentDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	PageCount    int       `json:"pageCount"`
	ChunkCount   int       `json:"chunkCount"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	UploadedAt   LocalTime `json:"uploadedAt"`
}

// ToDTO 将 Document 转换为 DocumentDTO。
func (d Document) ToDTO() DocumentDTO {
	return DocumentDTO{
		ID:           d.ID,
		Name:         d.Name,
		Type:         d.ContentType,
		Size:         d.Size,
		PageCount:    d.PageCount,
		ChunkCount:   d.ChunkCount,
		Status:       StatusText(d.Status),
		ErrorMessage: d.ErrorMessage,
		UploadedAt:   LocalTime(d.UploadedAt),
	}
}

// StatusText 返回状态码对应的文本。
func StatusText(status int) string {
	switch status {
	case DocumentStatusReady:
		return "READY"
	case DocumentStatusFailed:
		return "FAILED"
	default:
		return "PROCESSING"
	}
}
