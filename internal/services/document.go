package services

import (
	"context"
	"fmt"

	"github.com/yungbote/course-assistant-backend/internal/clients/gemini"
	"github.com/yungbote/course-assistant-backend/internal/pkg/errors"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

const DefaultDocumentMaxBytes = 20 << 20

type DocumentService interface {
	// Extract converts an uploaded document to markdown.
	Extract(ctx context.Context, filename, mimeType string, data []byte) (string, error)
}

type documentService struct {
	log      *logger.Logger
	ai       gemini.Client
	maxBytes int64
}

func NewDocumentService(baseLog *logger.Logger, ai gemini.Client, maxBytes int64) DocumentService {
	if maxBytes <= 0 {
		maxBytes = DefaultDocumentMaxBytes
	}
	return &documentService{
		log:      baseLog.With("service", "DocumentService"),
		ai:       ai,
		maxBytes: maxBytes,
	}
}

func (ds *documentService) Extract(ctx context.Context, filename, mimeType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("document %q is empty: %w", filename, errors.ErrInvalidArgument)
	}
	if int64(len(data)) > ds.maxBytes {
		return "", fmt.Errorf("document %q exceeds %d bytes: %w", filename, ds.maxBytes, errors.ErrTooLarge)
	}
	mt := gemini.DocumentTypeFor(filename, mimeType)
	if !gemini.SupportedDocumentType(mt) {
		return "", fmt.Errorf("document type %q: %w", mt, errors.ErrUnsupported)
	}

	md, err := ds.ai.ExtractDocument(ctx, data, mt)
	if err != nil {
		ds.log.Warn("document extraction failed", "filename", filename, "mime_type", mt, "error", err)
		return "", err
	}
	ds.log.Info("document extracted", "filename", filename, "mime_type", mt, "bytes", len(data))
	return md, nil
}
