package tools

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type ToolRepo interface {
	Create(dbc dbctx.Context, tool *types.Tool) (*types.Tool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Tool, error)
	// ListVisible returns enabled tools visible to the workspace: global records
	// plus the workspace's own. A workspace record shadows a global one with the
	// same name.
	ListVisible(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Tool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type toolRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewToolRepo(db *gorm.DB, baseLog *logger.Logger) ToolRepo {
	return &toolRepo{db: db, log: baseLog.With("repo", "ToolRepo")}
}

func (r *toolRepo) Create(dbc dbctx.Context, tool *types.Tool) (*types.Tool, error) {
	if tool == nil {
		return nil, fmt.Errorf("%w: nil tool", apperr.ErrInvalidArgument)
	}
	tool.Name = strings.TrimSpace(tool.Name)
	if tool.Name == "" || strings.TrimSpace(tool.Implementation) == "" {
		return nil, fmt.Errorf("%w: tool requires name and implementation", apperr.ErrInvalidArgument)
	}
	conn := dbc.Conn(r.db)
	q := conn.Model(&types.Tool{}).Where("name = ?", tool.Name)
	if tool.WorkspaceID == nil {
		q = q.Where("workspace_id IS NULL")
	} else {
		q = q.Where("workspace_id = ?", *tool.WorkspaceID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperr.NewError(apperr.CodeConflict, "tool.create", "tool "+tool.Name+" already exists in scope", nil)
	}
	// the unique indexes settle concurrent creates that both passed the count
	if err := conn.Create(tool).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.NewError(apperr.CodeConflict, "tool.create", "tool "+tool.Name+" already exists in scope", err)
		}
		return nil, err
	}
	return tool, nil
}

func (r *toolRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Tool, error) {
	var tool types.Tool
	err := dbc.Conn(r.db).Where("id = ?", id).First(&tool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewError(apperr.CodeNotFound, "tool.get", "tool "+id.String()+" not found", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tool, nil
}

func (r *toolRepo) ListVisible(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Tool, error) {
	var rows []*types.Tool
	err := dbc.Conn(r.db).
		Where("enabled = ? AND (workspace_id IS NULL OR workspace_id = ?)", true, workspaceID).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(rows))
	out := make([]*types.Tool, 0, len(rows))
	for _, t := range rows {
		if i, seen := byName[t.Name]; seen {
			if t.WorkspaceID != nil {
				out[i] = t
			}
			continue
		}
		byName[t.Name] = len(out)
		out = append(out, t)
	}
	return out, nil
}

func (r *toolRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	// updated_at is part of the builder cache key; every edit must move it.
	updates["updated_at"] = time.Now()
	return dbc.Conn(r.db).
		Model(&types.Tool{}).
		Where("id = ?", id).
		Updates(updates).Error
}
