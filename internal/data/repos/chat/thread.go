package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	chatdomain "github.com/getnvoi/aven-sub001/internal/domain/chat"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type ThreadRepo interface {
	Create(dbc dbctx.Context, thread *types.Thread) (*types.Thread, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Thread, error)
	ListByUser(dbc dbctx.Context, workspaceID, userID uuid.UUID, limit int) ([]*types.Thread, error)
	// SetTitleIfEmpty writes title only while the stored title is NULL or empty.
	SetTitleIfEmpty(dbc dbctx.Context, id uuid.UUID, title string) (bool, error)
	// LockTools and LockDocuments apply only while the stored list is NULL.
	LockTools(dbc dbctx.Context, id uuid.UUID, names []string) (bool, error)
	LockDocuments(dbc dbctx.Context, id uuid.UUID, documentIDs []uuid.UUID) (bool, error)
	// Delete removes the thread and all of its messages.
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type threadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThreadRepo(db *gorm.DB, baseLog *logger.Logger) ThreadRepo {
	return &threadRepo{db: db, log: baseLog.With("repo", "ThreadRepo")}
}

func (r *threadRepo) Create(dbc dbctx.Context, thread *types.Thread) (*types.Thread, error) {
	if thread == nil {
		return nil, fmt.Errorf("%w: nil thread", apperr.ErrInvalidArgument)
	}
	if thread.WorkspaceID == uuid.Nil || thread.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: thread requires workspace and user", apperr.ErrInvalidArgument)
	}
	if err := dbc.Conn(r.db).Create(thread).Error; err != nil {
		return nil, err
	}
	return thread, nil
}

func (r *threadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Thread, error) {
	var thread types.Thread
	err := dbc.Conn(r.db).Where("id = ?", id).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewError(apperr.CodeNotFound, "thread.get", "thread "+id.String()+" not found", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *threadRepo) ListByUser(dbc dbctx.Context, workspaceID, userID uuid.UUID, limit int) ([]*types.Thread, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.Thread
	err := dbc.Conn(r.db).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *threadRepo) SetTitleIfEmpty(dbc dbctx.Context, id uuid.UUID, title string) (bool, error) {
	res := dbc.Conn(r.db).
		Model(&types.Thread{}).
		Where("id = ? AND (title IS NULL OR title = '')", id).
		Updates(map[string]interface{}{"title": title, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *threadRepo) LockTools(dbc dbctx.Context, id uuid.UUID, names []string) (bool, error) {
	return r.lockColumn(dbc, id, "tools", chatdomain.EncodeList(names))
}

func (r *threadRepo) LockDocuments(dbc dbctx.Context, id uuid.UUID, documentIDs []uuid.UUID) (bool, error) {
	return r.lockColumn(dbc, id, "documents", chatdomain.EncodeList(documentIDs))
}

func (r *threadRepo) lockColumn(dbc dbctx.Context, id uuid.UUID, column string, value interface{}) (bool, error) {
	res := dbc.Conn(r.db).
		Model(&types.Thread{}).
		Where("id = ? AND "+column+" IS NULL", id).
		Updates(map[string]interface{}{column: value, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *threadRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("thread_id = ?", id).Delete(&types.Message{}).Error; err != nil {
			return err
		}
		return txx.Where("id = ?", id).Delete(&types.Thread{}).Error
	})
}
