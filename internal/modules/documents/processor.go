// Package documents runs the extraction and embedding stages of uploaded
// documents.
package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	docrepo "github.com/getnvoi/aven-sub001/internal/data/repos/documents"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	docdomain "github.com/getnvoi/aven-sub001/internal/domain/documents"
	"github.com/getnvoi/aven-sub001/internal/ingestion/extractor"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/ctxutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type Blobs interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, doc *types.Document, data []byte) (string, error)
}

type EmbedScheduler interface {
	EnqueueDocumentEmbed(dbc dbctx.Context, ownerUserID, documentID uuid.UUID) (*types.JobRun, error)
}

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Concurrency  int
}

type ProcessorDeps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Docs      docrepo.DocumentRepo
	Blobs     Blobs
	Extractor TextExtractor
	Embedder  llm.Embedder
	Jobs      EmbedScheduler
	Config    Config
}

type Processor struct {
	db        *gorm.DB
	log       *logger.Logger
	docs      docrepo.DocumentRepo
	blobs     Blobs
	extractor TextExtractor
	embedder  llm.Embedder
	jobs      EmbedScheduler
	cfg       Config
}

func NewProcessor(deps ProcessorDeps) (*Processor, error) {
	if deps.DB == nil || deps.Log == nil || deps.Docs == nil {
		return nil, fmt.Errorf("document processor: missing db, log or docs")
	}
	cfg := deps.Config
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = extractor.DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = extractor.DefaultChunkOverlap
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Processor{
		db:        deps.DB,
		log:       deps.Log.With("service", "DocumentProcessor"),
		docs:      deps.Docs,
		blobs:     deps.Blobs,
		extractor: deps.Extractor,
		embedder:  deps.Embedder,
		jobs:      deps.Jobs,
		cfg:       cfg,
	}, nil
}

type OCRResult struct {
	Status docdomain.OCRStatus `json:"ocr_status"`
	Chars  int                 `json:"chars"`
	Reason string              `json:"reason,omitempty"`
}

// RunOCR extracts text from the stored blob. Extraction problems end in the
// skipped or failed status without an error; only storage and database
// failures are returned.
func (p *Processor) RunOCR(ctx context.Context, ownerUserID, documentID uuid.UUID) (OCRResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	doc, err := p.docs.GetByID(dbc, documentID)
	if err != nil {
		return OCRResult{}, err
	}
	if err := p.setOCR(ctx, doc.ID, docdomain.OCRProcessing); err != nil {
		return OCRResult{}, err
	}
	if p.blobs == nil || p.extractor == nil {
		return p.finishOCR(ctx, doc, docdomain.OCRSkipped, "extraction unavailable")
	}

	data, err := p.blobs.Download(ctx, doc.StorageKey)
	if err != nil {
		_ = p.setOCR(ctxutil.Detached(ctx), doc.ID, docdomain.OCRFailed)
		return OCRResult{Status: docdomain.OCRFailed}, fmt.Errorf("download %s: %w", doc.StorageKey, err)
	}

	text, err := p.extractor.Extract(ctx, doc, data)
	switch {
	case errors.Is(err, extractor.ErrUnsupported):
		return p.finishOCR(ctx, doc, docdomain.OCRSkipped, "unsupported kind "+string(doc.Kind()))
	case err != nil:
		p.log.Warn("Document extraction failed", "document_id", doc.ID, "error", err)
		return p.finishOCR(ctx, doc, docdomain.OCRFailed, err.Error())
	case text == "":
		return p.finishOCR(ctx, doc, docdomain.OCRSkipped, "no text found")
	}

	res := OCRResult{Status: docdomain.OCRCompleted, Chars: len([]rune(text))}
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := p.docs.UpdateFields(tdbc, doc.ID, map[string]interface{}{
			"ocr_status":       docdomain.OCRCompleted,
			"extracted_text":   text,
			"embedding_status": docdomain.EmbeddingPending,
		}); err != nil {
			return err
		}
		if p.jobs == nil {
			return nil
		}
		_, err := p.jobs.EnqueueDocumentEmbed(tdbc, ownerUserID, doc.ID)
		return err
	})
	if err != nil {
		return OCRResult{}, err
	}
	p.log.Info("Document text extracted", "document_id", doc.ID, "chars", res.Chars)
	return res, nil
}

func (p *Processor) finishOCR(ctx context.Context, doc *types.Document, status docdomain.OCRStatus, reason string) (OCRResult, error) {
	if err := p.setOCR(ctxutil.Detached(ctx), doc.ID, status); err != nil {
		return OCRResult{}, err
	}
	p.log.Info("Document extraction finished without text", "document_id", doc.ID, "ocr_status", status, "reason", reason)
	return OCRResult{Status: status, Reason: reason}, nil
}

func (p *Processor) setOCR(ctx context.Context, id uuid.UUID, status docdomain.OCRStatus) error {
	return p.docs.UpdateFields(dbctx.Context{Ctx: ctx}, id, map[string]interface{}{"ocr_status": status})
}

type EmbedResult struct {
	Status docdomain.EmbeddingStatus `json:"embedding_status"`
	Chunks int                       `json:"chunks"`
	// Skipped is set when OCR has not produced text yet.
	Skipped bool `json:"skipped,omitempty"`
}

// RunEmbedding chunks the extracted text, embeds the chunks and replaces the
// stored chunk set in one transaction.
func (p *Processor) RunEmbedding(ctx context.Context, documentID uuid.UUID) (EmbedResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	doc, err := p.docs.GetByID(dbc, documentID)
	if err != nil {
		return EmbedResult{}, err
	}
	if !doc.ReadyForEmbedding() {
		p.log.Debug("Document not ready for embedding", "document_id", doc.ID, "ocr_status", doc.OCRStatus)
		return EmbedResult{Status: doc.EmbeddingStatus, Skipped: true}, nil
	}
	if p.embedder == nil {
		return EmbedResult{}, fmt.Errorf("document embedding: no embedder configured")
	}
	if err := p.setEmbedding(ctx, doc.ID, docdomain.EmbeddingProcessing); err != nil {
		return EmbedResult{}, err
	}

	chunks, err := p.embedChunks(ctx, doc)
	if err == nil {
		err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			tdbc := dbctx.Context{Ctx: ctx, Tx: tx}
			if err := p.docs.ReplaceChunks(tdbc, doc.ID, chunks); err != nil {
				return err
			}
			return p.docs.UpdateFields(tdbc, doc.ID, map[string]interface{}{"embedding_status": docdomain.EmbeddingCompleted})
		})
	}
	if err != nil {
		_ = p.setEmbedding(ctxutil.Detached(ctx), doc.ID, docdomain.EmbeddingFailed)
		return EmbedResult{Status: docdomain.EmbeddingFailed}, err
	}
	p.log.Info("Document embedded", "document_id", doc.ID, "chunks", len(chunks))
	return EmbedResult{Status: docdomain.EmbeddingCompleted, Chunks: len(chunks)}, nil
}

func (p *Processor) embedChunks(ctx context.Context, doc *types.Document) ([]*types.DocumentChunk, error) {
	texts := extractor.SplitIntoChunks(doc.Text(), p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	out := make([]*types.DocumentChunk, len(texts))
	for i, t := range texts {
		out[i] = &types.DocumentChunk{DocumentID: doc.ID, WorkspaceID: doc.WorkspaceID, Position: i, Content: t}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		start := start
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := p.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed chunks: embedding count mismatch (got %d want %d)", len(vecs), end-start)
			}
			for i, v := range vecs {
				out[start+i].SetVector(v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Processor) setEmbedding(ctx context.Context, id uuid.UUID, status docdomain.EmbeddingStatus) error {
	return p.docs.UpdateFields(dbctx.Context{Ctx: ctx}, id, map[string]interface{}{"embedding_status": status})
}
