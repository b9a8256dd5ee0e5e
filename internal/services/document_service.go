package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	docrepo "github.com/getnvoi/aven-sub001/internal/data/repos/documents"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

const maxDocumentBytes = 50 << 20

// BlobStore holds uploaded document bytes.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type UploadDocumentInput struct {
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	Filename    string
	ContentType string
	Body        io.Reader
}

type DocumentService interface {
	// Upload stores the bytes, records the document and queues OCR.
	Upload(dbc dbctx.Context, in UploadDocumentInput) (*types.Document, error)
	Get(dbc dbctx.Context, workspaceID, documentID uuid.UUID) (*types.Document, error)
	// Reprocess queues OCR again, e.g. after a failed extraction.
	Reprocess(dbc dbctx.Context, workspaceID, userID, documentID uuid.UUID) (*types.JobRun, error)
}

type documentService struct {
	log   *logger.Logger
	docs  docrepo.DocumentRepo
	blobs BlobStore
	jobs  JobService
}

func NewDocumentService(baseLog *logger.Logger, docs docrepo.DocumentRepo, blobs BlobStore, jobs JobService) DocumentService {
	return &documentService{
		log:   baseLog.With("service", "DocumentService"),
		docs:  docs,
		blobs: blobs,
		jobs:  jobs,
	}
}

func (s *documentService) Upload(dbc dbctx.Context, in UploadDocumentInput) (*types.Document, error) {
	if in.WorkspaceID == uuid.Nil || in.UserID == uuid.Nil {
		return nil, apperr.NewError(apperr.CodeValidation, "document.upload", "workspace and user required", apperr.ErrInvalidArgument)
	}
	name := filepath.Base(strings.TrimSpace(in.Filename))
	if name == "" || name == "." || name == "/" {
		return nil, apperr.NewError(apperr.CodeValidation, "document.upload", "filename required", apperr.ErrInvalidArgument)
	}
	if in.Body == nil {
		return nil, apperr.NewError(apperr.CodeValidation, "document.upload", "empty body", apperr.ErrInvalidArgument)
	}
	if s.blobs == nil {
		return nil, apperr.NewError(apperr.CodeUnavailable, "document.upload", "document storage not configured", nil)
	}
	data, err := io.ReadAll(io.LimitReader(in.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, apperr.NewError(apperr.CodeValidation, "document.upload", "empty body", apperr.ErrInvalidArgument)
	}
	if len(data) > maxDocumentBytes {
		return nil, apperr.NewError(apperr.CodeValidation, "document.upload", "document too large", apperr.ErrInvalidArgument)
	}

	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	doc := &types.Document{
		ID:          uuid.New(),
		WorkspaceID: in.WorkspaceID,
		UploadedBy:  in.UserID,
		Filename:    name,
		ContentType: contentType,
		ByteSize:    int64(len(data)),
	}
	doc.StorageKey = fmt.Sprintf("documents/%s/%s/%s", in.WorkspaceID, doc.ID, name)

	if err := s.blobs.Upload(dbc.Ctx, doc.StorageKey, contentType, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	if _, err := s.docs.Create(dbc, doc); err != nil {
		if delErr := s.blobs.Delete(dbc.Ctx, doc.StorageKey); delErr != nil {
			s.log.Warn("orphaned document blob", "key", doc.StorageKey, "error", delErr)
		}
		return nil, fmt.Errorf("create document: %w", err)
	}
	if _, err := s.jobs.EnqueueDocumentOCR(dbc, in.UserID, doc.ID); err != nil {
		s.log.Warn("ocr not queued", "document_id", doc.ID, "error", err)
	}
	return doc, nil
}

func (s *documentService) Get(dbc dbctx.Context, workspaceID, documentID uuid.UUID) (*types.Document, error) {
	doc, err := s.docs.GetByID(dbc, documentID)
	if err != nil {
		return nil, err
	}
	if doc.WorkspaceID != workspaceID {
		return nil, apperr.NewError(apperr.CodeNotFound, "document.get", "document "+documentID.String()+" not found", apperr.ErrNotFound)
	}
	return doc, nil
}

func (s *documentService) Reprocess(dbc dbctx.Context, workspaceID, userID, documentID uuid.UUID) (*types.JobRun, error) {
	if _, err := s.Get(dbc, workspaceID, documentID); err != nil {
		return nil, err
	}
	return s.jobs.EnqueueDocumentOCR(dbc, userID, documentID)
}
