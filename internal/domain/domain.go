package domain

import (
	"github.com/getnvoi/aven-sub001/internal/domain/chat"
	"github.com/getnvoi/aven-sub001/internal/domain/documents"
	"github.com/getnvoi/aven-sub001/internal/domain/jobs"
	"github.com/getnvoi/aven-sub001/internal/domain/tools"
)

type (
	Thread   = chat.Thread
	Message  = chat.Message
	ToolCall = chat.ToolCall
	Role     = chat.Role
	Status   = chat.Status
	Usage    = chat.Usage

	Tool          = tools.Tool
	ToolParameter = tools.Parameter

	Document      = documents.Document
	DocumentChunk = documents.Chunk

	JobRun = jobs.JobRun
)

const (
	RoleUser      = chat.RoleUser
	RoleAssistant = chat.RoleAssistant
	RoleTool      = chat.RoleTool
	RoleSystem    = chat.RoleSystem

	StatusPending   = chat.StatusPending
	StatusStreaming = chat.StatusStreaming
	StatusSuccess   = chat.StatusSuccess
	StatusError     = chat.StatusError
)

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{
		&Thread{},
		&Message{},
		&Tool{},
		&Document{},
		&DocumentChunk{},
		&JobRun{},
	}
}
