package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"doc-whisper-go/internal/model"
	"doc-whisper-go/internal/service"
	"doc-whisper-go/pkg/log"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService  service.DocumentService
	maxUploadMB int64
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService, maxUploadMB int64) *DocumentHandler {
	return &DocumentHandler{docService: docService, maxUploadMB: maxUploadMB}
}

// Upload 接收 multipart 字段 file，保存并入库。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondFail(c, http.StatusBadRequest, "缺少上传文件字段 file")
		return
	}
	if h.maxUploadMB > 0 && fileHeader.Size > h.maxUploadMB<<20 {
		respondFail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("文件大小超过 %dMB 限制", h.maxUploadMB))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondFail(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	doc, err := h.docService.Upload(c.Request.Context(), fileHeader.Filename, contentType, fileHeader.Size, file)
	if err != nil {
		log.Errorf("[DocumentHandler] 上传文档 %s 失败: %v", fileHeader.Filename, err)
		if doc != nil {
			c.JSON(statusFor(err), gin.H{"code": statusFor(err), "message": err.Error(), "data": doc.ToDTO()})
			return
		}
		respondError(c, err)
		return
	}
	respondOK(c, "文档上传成功", doc.ToDTO())
}

// List 返回全部文档。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List()
	if err != nil {
		log.Error("[DocumentHandler] 获取文档列表失败", err)
		respondError(c, err)
		return
	}
	dtos := make([]model.DocumentDTO, 0, len(docs))
	for _, d := range docs {
		dtos = append(dtos, d.ToDTO())
	}
	respondOK(c, "获取文档列表成功", dtos)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.docService.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", doc.ToDTO())
}

// Delete 级联删除文档及其全部分块。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.docService.Delete(c.Request.Context(), id); err != nil {
		log.Warnf("[DocumentHandler] 删除文档 %s 失败: %v", id, err)
		respondError(c, err)
		return
	}
	respondOK(c, "文档删除成功", nil)
}
