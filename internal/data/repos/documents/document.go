package documents

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// ReplaceChunks swaps the document's chunk set in one transaction.
	ReplaceChunks(dbc dbctx.Context, documentID uuid.UUID, chunks []*types.DocumentChunk) error
	ListChunks(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error)
	ListWorkspaceChunks(dbc dbctx.Context, workspaceID uuid.UUID, limit int) ([]*types.DocumentChunk, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error) {
	if err := dbc.Conn(r.db).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	var doc types.Document
	err := dbc.Conn(r.db).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewError(apperr.CodeNotFound, "document.get", "document "+id.String()+" not found", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error) {
	var out []*types.Document
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	// keep caller order
	pos := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}
	sorted := make([]*types.Document, 0, len(out))
	slots := make([]*types.Document, len(ids))
	for _, d := range out {
		slots[pos[d.ID]] = d
	}
	for _, d := range slots {
		if d != nil {
			sorted = append(sorted, d)
		}
	}
	return sorted, nil
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).Model(&types.Document{}).Where("id = ?", id).Updates(updates).Error
}

func (r *documentRepo) ReplaceChunks(dbc dbctx.Context, documentID uuid.UUID, chunks []*types.DocumentChunk) error {
	return dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("document_id = ?", documentID).Delete(&types.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for _, c := range chunks {
			c.DocumentID = documentID
		}
		return txx.CreateInBatches(chunks, 100).Error
	})
}

func (r *documentRepo) ListChunks(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	var out []*types.DocumentChunk
	err := dbc.Conn(r.db).
		Where("document_id = ?", documentID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

func (r *documentRepo) ListWorkspaceChunks(dbc dbctx.Context, workspaceID uuid.UUID, limit int) ([]*types.DocumentChunk, error) {
	if limit <= 0 {
		limit = 5000
	}
	var out []*types.DocumentChunk
	err := dbc.Conn(r.db).
		Where("workspace_id = ?", workspaceID).
		Order("document_id ASC").
		Order("position ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
