package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Thread is one conversation scoped to a workspace and owning user.
//
// Tools and Documents are lock-once: NULL means unrestricted (tools) or none
// (documents); once non-NULL the list never changes for the life of the thread.
type Thread struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title       *string        `gorm:"column:title" json:"title"`
	Context     string         `gorm:"column:context;type:text;not null;default:''" json:"context"`
	Tools       datatypes.JSON `gorm:"column:tools;type:jsonb" json:"tools"`
	Documents   datatypes.JSON `gorm:"column:documents;type:jsonb" json:"documents"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Thread) TableName() string { return "chat_thread" }

func (t *Thread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// HasTitle reports whether a non-empty title has been assigned.
func (t *Thread) HasTitle() bool {
	return t != nil && t.Title != nil && *t.Title != ""
}

// LockedTools returns the locked tool names and whether the toolset is locked.
// A locked, empty list is a permanently tool-less thread.
func (t *Thread) LockedTools() ([]string, bool) {
	if t == nil || len(t.Tools) == 0 || string(t.Tools) == "null" {
		return nil, false
	}
	var names []string
	if err := json.Unmarshal(t.Tools, &names); err != nil {
		return nil, false
	}
	if names == nil {
		names = []string{}
	}
	return names, true
}

// LockTools sets the tool list if it is still unset. It reports whether the
// lock was applied; an already-locked list is left untouched.
func (t *Thread) LockTools(names []string) bool {
	if _, locked := t.LockedTools(); locked {
		return false
	}
	t.Tools = EncodeList(names)
	return true
}

// LockedDocuments returns the locked document ids and whether documents are locked.
func (t *Thread) LockedDocuments() ([]uuid.UUID, bool) {
	if t == nil || len(t.Documents) == 0 || string(t.Documents) == "null" {
		return nil, false
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(t.Documents, &ids); err != nil {
		return nil, false
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, true
}

func (t *Thread) LockDocuments(ids []uuid.UUID) bool {
	if _, locked := t.LockedDocuments(); locked {
		return false
	}
	t.Documents = EncodeList(ids)
	return true
}

// EncodeList renders items as a JSON array; nil encodes as [].
func EncodeList[T any](items []T) datatypes.JSON {
	if items == nil {
		items = []T{}
	}
	b, _ := json.Marshal(items)
	return datatypes.JSON(b)
}
