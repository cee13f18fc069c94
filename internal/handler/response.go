// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"doc-whisper-go/internal/pipeline"
	"doc-whisper-go/internal/repository"
	"doc-whisper-go/internal/service"
)

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}

func respondFail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// statusFor 把业务错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmptyQuestion), errors.Is(err, service.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrEmbeddingFailed),
		errors.Is(err, service.ErrGenerationFailed),
		errors.Is(err, pipeline.ErrIngestionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	respondFail(c, statusFor(err), err.Error())
}
