package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusError }

// Message is one turn or sub-turn within a thread. Tool messages carry the
// provider's tool-call id in ToolCallID (unique) and the full call in ToolCall.
type Message struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_chat_message_thread_seq,priority:1" json:"thread_id"`
	ParentID     *uuid.UUID     `gorm:"type:uuid;column:parent_id;index" json:"parent_id,omitempty"`
	Seq          int64          `gorm:"column:seq;not null;index:idx_chat_message_thread_seq,priority:2" json:"seq"`
	Role         Role           `gorm:"column:role;not null;index" json:"role"`
	Status       Status         `gorm:"column:status;not null;index" json:"status"`
	Content      *string        `gorm:"column:content;type:text" json:"content"`
	Model        string         `gorm:"column:model" json:"model,omitempty"`
	InputTokens  int            `gorm:"column:input_tokens;not null;default:0" json:"input_tokens"`
	OutputTokens int            `gorm:"column:output_tokens;not null;default:0" json:"output_tokens"`
	TotalTokens  int            `gorm:"column:total_tokens;not null;default:0" json:"total_tokens"`
	Cost         *float64       `gorm:"column:cost" json:"cost,omitempty"`
	ToolCallID   *string        `gorm:"column:tool_call_id;uniqueIndex" json:"tool_call_id,omitempty"`
	ToolCall     datatypes.JSON `gorm:"column:tool_call;type:jsonb" json:"tool_call,omitempty"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (Message) TableName() string { return "chat_message" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return m.Validate()
}

// Text returns the content, treating NULL as empty.
func (m *Message) Text() string {
	if m == nil || m.Content == nil {
		return ""
	}
	return *m.Content
}

// Validate enforces that content is present except on an assistant message that
// is still pending or streaming.
func (m *Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
	default:
		return fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidArgument, m.Role)
	}
	switch m.Status {
	case StatusPending, StatusStreaming, StatusSuccess, StatusError:
	default:
		return fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidArgument, m.Status)
	}
	if m.Content != nil {
		return nil
	}
	if m.Role == RoleAssistant && (m.Status == StatusPending || m.Status == StatusStreaming) {
		return nil
	}
	return fmt.Errorf("%w: content required for %s message in %s", apperr.ErrInvalidArgument, m.Role, m.Status)
}

// MarkStarted moves pending → streaming.
func (m *Message) MarkStarted(now time.Time) error {
	if m.Status != StatusPending {
		return m.transitionErr(StatusStreaming)
	}
	m.Status = StatusStreaming
	m.StartedAt = &now
	return nil
}

// AppendContent concatenates chunk onto the content. Only valid while streaming.
func (m *Message) AppendContent(chunk string) error {
	if m.Status != StatusStreaming {
		return m.transitionErr(StatusStreaming)
	}
	next := m.Text() + chunk
	m.Content = &next
	return nil
}

// Usage is the token triple reported for a completed generation.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

func (m *Message) MarkCompleted(content, model string, usage Usage, now time.Time) error {
	if m.Status.Terminal() {
		return m.transitionErr(StatusSuccess)
	}
	m.Status = StatusSuccess
	m.Content = &content
	m.Model = model
	m.InputTokens = usage.InputTokens
	m.OutputTokens = usage.OutputTokens
	m.TotalTokens = usage.Total()
	m.CompletedAt = &now
	return nil
}

// MarkFailed moves to error and replaces the content with the error text.
func (m *Message) MarkFailed(errText string, now time.Time) error {
	if m.Status.Terminal() {
		return m.transitionErr(StatusError)
	}
	errText = strings.TrimSpace(errText)
	if errText == "" {
		errText = "An error occurred while generating a response."
	}
	m.Status = StatusError
	m.Content = &errText
	m.CompletedAt = &now
	return nil
}

func (m *Message) transitionErr(to Status) error {
	return fmt.Errorf("%w: message %s %s -> %s", apperr.ErrInvalidTransition, m.ID, m.Status, to)
}

type ToolCallStatus string

const (
	ToolCallCalling   ToolCallStatus = "calling"
	ToolCallCompleted ToolCallStatus = "completed"
)

// ToolCall is the structured payload stored on a tool message.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Status    ToolCallStatus `json:"status"`
	Result    *string        `json:"result,omitempty"`
}

// DecodeToolCall reads the tool_call column. ok is false when unset or unreadable.
func (m *Message) DecodeToolCall() (ToolCall, bool) {
	var tc ToolCall
	if m == nil || len(m.ToolCall) == 0 || string(m.ToolCall) == "null" {
		return tc, false
	}
	if err := json.Unmarshal(m.ToolCall, &tc); err != nil {
		return tc, false
	}
	return tc, true
}

func (m *Message) SetToolCall(tc ToolCall) {
	b, _ := json.Marshal(tc)
	m.ToolCall = datatypes.JSON(b)
	id := tc.ID
	m.ToolCallID = &id
}

// CompleteToolCall merges the result into the stored call and marks it completed.
func (m *Message) CompleteToolCall(result string) error {
	tc, ok := m.DecodeToolCall()
	if !ok {
		return fmt.Errorf("%w: message %s has no tool call", apperr.ErrInvalidArgument, m.ID)
	}
	tc.Result = &result
	tc.Status = ToolCallCompleted
	m.SetToolCall(tc)
	return nil
}
