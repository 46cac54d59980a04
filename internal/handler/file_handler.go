package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragdesk/ragdesk/internal/pkg/errcode"
	"github.com/ragdesk/ragdesk/internal/pkg/response"
	"github.com/ragdesk/ragdesk/internal/service"
)

const maxUploadSize = 64 << 20

type FileHandler struct {
	files *service.FileService
}

func NewFileHandler(files *service.FileService) *FileHandler {
	return &FileHandler{files: files}
}

// Upload accepts a multipart document, stores it and kicks off ingestion
// in the background. Progress arrives via the file events stream.
func (h *FileHandler) Upload(c *gin.Context) {
	kbID := c.Param("id")
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file field is required")
		return
	}
	if header.Size <= 0 || header.Size > maxUploadSize {
		response.Error(c, errcode.ErrInvalidFile, "file size out of range")
		return
	}
	src, err := header.Open()
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "open upload failed")
		return
	}
	defer src.Close()

	file, err := h.files.Upload(c.Request.Context(), kbID, header.Filename,
		header.Header.Get("Content-Type"), src, header.Size)
	if err != nil {
		handleError(c, err)
		return
	}

	go func() {
		// Detached from the request; the upload response returns while
		// ingestion runs.
		ctx := context.Background()
		if err := h.files.Process(ctx, file.ID); err != nil {
			logutil.GetLogger(ctx).Error("background ingest failed",
				zap.String("file_id", file.ID), zap.Error(err))
		}
	}()
	response.Success(c, file)
}

func (h *FileHandler) List(c *gin.Context) {
	items, err := h.files.ListByKnowledgeBase(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

func (h *FileHandler) Get(c *gin.Context) {
	file, err := h.files.Get(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, file)
}

// Process re-runs ingestion for an existing file, e.g. after an ERROR.
func (h *FileHandler) Process(c *gin.Context) {
	fileID := c.Param("fileId")
	if _, err := h.files.Get(c.Request.Context(), fileID); err != nil {
		handleError(c, err)
		return
	}
	go func() {
		ctx := context.Background()
		if err := h.files.Process(ctx, fileID); err != nil {
			logutil.GetLogger(ctx).Error("background ingest failed",
				zap.String("file_id", fileID), zap.Error(err))
		}
	}()
	response.Success(c, gin.H{"file_id": fileID})
}

func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), c.Param("fileId")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}
