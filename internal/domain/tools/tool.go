package tools

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamFloat   ParamType = "float"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// validName is the function-name grammar accepted by chat providers.
var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidName reports whether name can be offered to a model as a function name.
func ValidName(name string) bool { return validName.MatchString(name) }

type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
}

// Tool is a database-defined capability. WorkspaceID nil means global.
// Implementation names the registered executable backing the record.
type Tool struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID    *uuid.UUID     `gorm:"type:uuid;column:workspace_id;uniqueIndex:idx_tool_scope_name,priority:1" json:"workspace_id,omitempty"`
	// idx_tool_scope_name treats NULL workspaces as distinct; global names are
	// unique through the partial index.
	Name           string         `gorm:"column:name;not null;uniqueIndex:idx_tool_scope_name,priority:2;uniqueIndex:idx_tool_global_name,where:workspace_id IS NULL" json:"name"`
	Implementation string         `gorm:"column:implementation;not null" json:"implementation"`
	Enabled        bool           `gorm:"column:enabled;not null;default:true;index" json:"enabled"`
	Description    *string        `gorm:"column:description;type:text" json:"description,omitempty"`
	Parameters     datatypes.JSON `gorm:"column:parameters;type:jsonb" json:"parameters"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (Tool) TableName() string { return "tool" }

func (t *Tool) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Params decodes the ordered parameter list; unreadable JSON yields none.
func (t *Tool) Params() []Parameter {
	if t == nil || len(t.Parameters) == 0 {
		return nil
	}
	var out []Parameter
	if err := json.Unmarshal(t.Parameters, &out); err != nil {
		return nil
	}
	return out
}

func (t *Tool) SetParams(params []Parameter) {
	if params == nil {
		params = []Parameter{}
	}
	b, _ := json.Marshal(params)
	t.Parameters = datatypes.JSON(b)
}
