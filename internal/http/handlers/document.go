package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/course-assistant-backend/internal/http/response"
	apperr "github.com/yungbote/course-assistant-backend/internal/pkg/errors"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/services"
)

type DocumentHandler struct {
	log      *logger.Logger
	docs     services.DocumentService
	maxBytes int64
}

func NewDocumentHandler(log *logger.Logger, docs services.DocumentService, maxBytes int64) *DocumentHandler {
	if maxBytes <= 0 {
		maxBytes = services.DefaultDocumentMaxBytes
	}
	return &DocumentHandler{log: log.With("handler", "DocumentHandler"), docs: docs, maxBytes: maxBytes}
}

// POST /api/documents/extract
func (h *DocumentHandler) Extract(c *gin.Context) {
	// room for multipart framing around the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			response.RespondAppError(c, fmt.Errorf("upload exceeds %d bytes: %w", h.maxBytes, apperr.ErrTooLarge))
			return
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	if fh.Size > h.maxBytes {
		response.RespondAppError(c, fmt.Errorf("document %q exceeds %d bytes: %w", fh.Filename, h.maxBytes, apperr.ErrTooLarge))
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.log.Error("cannot open uploaded file", "error", err, "filename", fh.Filename)
		response.RespondError(c, http.StatusBadRequest, "could_not_read_file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "could_not_read_file", err)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	md, err := h.docs.Extract(c.Request.Context(), fh.Filename, mimeType, data)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"filename": fh.Filename, "markdown": md})
}
