package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type MessageRepo interface {
	// Create assigns the next per-thread sequence number and inserts msg.
	Create(dbc dbctx.Context, msg *types.Message) (*types.Message, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Message, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Message, error)
	ListRecent(dbc dbctx.Context, threadID uuid.UUID, limit int) ([]*types.Message, error)
	// FindByToolCallID returns nil, nil when no tool message carries the id.
	FindByToolCallID(dbc dbctx.Context, toolCallID string) (*types.Message, error)
	// CountUserMessagesBefore counts user-role rows in the thread with a
	// sequence number below seq, reading live table state.
	CountUserMessagesBefore(dbc dbctx.Context, threadID uuid.UUID, seq int64) (int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// Delete removes a message and clears the parent reference of its children.
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, msg *types.Message) (*types.Message, error) {
	if msg == nil || msg.ThreadID == uuid.Nil {
		return nil, fmt.Errorf("%w: message requires thread", apperr.ErrInvalidArgument)
	}
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		var maxSeq int64
		if err := txx.Model(&types.Message{}).
			Where("thread_id = ?", msg.ThreadID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		msg.Seq = maxSeq + 1
		if err := txx.Create(msg).Error; err != nil {
			return err
		}
		return txx.Model(&types.Thread{}).Where("id = ?", msg.ThreadID).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *messageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Message, error) {
	var msg types.Message
	err := dbc.Conn(r.db).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewError(apperr.CodeNotFound, "message.get", "message "+id.String()+" not found", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Message, error) {
	var out []*types.Message
	err := dbc.Conn(r.db).
		Where("thread_id = ?", threadID).
		Order("seq ASC").
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) ListRecent(dbc dbctx.Context, threadID uuid.UUID, limit int) ([]*types.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.Message
	err := dbc.Conn(r.db).
		Where("thread_id = ?", threadID).
		Order("seq DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) FindByToolCallID(dbc dbctx.Context, toolCallID string) (*types.Message, error) {
	if toolCallID == "" {
		return nil, nil
	}
	var msg types.Message
	err := dbc.Conn(r.db).
		Where("tool_call_id = ? AND role = ?", toolCallID, types.RoleTool).
		Limit(1).
		Find(&msg).Error
	if err != nil {
		return nil, err
	}
	if msg.ID == uuid.Nil {
		return nil, nil
	}
	return &msg, nil
}

func (r *messageRepo) CountUserMessagesBefore(dbc dbctx.Context, threadID uuid.UUID, seq int64) (int64, error) {
	var count int64
	err := dbc.Conn(r.db).
		Model(&types.Message{}).
		Where("thread_id = ? AND role = ? AND seq < ?", threadID, types.RoleUser, seq).
		Count(&count).Error
	return count, err
}

func (r *messageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).
		Model(&types.Message{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *messageRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Model(&types.Message{}).
			Where("parent_id = ?", id).
			Update("parent_id", nil).Error; err != nil {
			return err
		}
		return txx.Where("id = ?", id).Delete(&types.Message{}).Error
	})
}
