package document_ocr

import (
	"context"

	"github.com/google/uuid"

	jobdomain "github.com/getnvoi/aven-sub001/internal/domain/jobs"
	docmod "github.com/getnvoi/aven-sub001/internal/modules/documents"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type OCRRunner interface {
	RunOCR(ctx context.Context, ownerUserID, documentID uuid.UUID) (docmod.OCRResult, error)
}

type Pipeline struct {
	log  *logger.Logger
	docs OCRRunner
}

func New(baseLog *logger.Logger, docs OCRRunner) *Pipeline {
	return &Pipeline{log: baseLog.With("job", jobdomain.JobTypeDocumentOCR), docs: docs}
}

func (p *Pipeline) Type() string { return jobdomain.JobTypeDocumentOCR }
