package document_embed

import (
	"context"

	"github.com/google/uuid"

	jobdomain "github.com/getnvoi/aven-sub001/internal/domain/jobs"
	docmod "github.com/getnvoi/aven-sub001/internal/modules/documents"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type Embedder interface {
	RunEmbedding(ctx context.Context, documentID uuid.UUID) (docmod.EmbedResult, error)
}

type Pipeline struct {
	log  *logger.Logger
	docs Embedder
}

func New(baseLog *logger.Logger, docs Embedder) *Pipeline {
	return &Pipeline{log: baseLog.With("job", jobdomain.JobTypeDocumentEmbed), docs: docs}
}

func (p *Pipeline) Type() string { return jobdomain.JobTypeDocumentEmbed }
