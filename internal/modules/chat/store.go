package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	chatdomain "github.com/getnvoi/aven-sub001/internal/domain/chat"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/ctxutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/services"
)

// Store applies message lifecycle transitions, persists each one immediately
// and broadcasts the new state.
type Store struct {
	log      *logger.Logger
	messages chatrepo.MessageRepo
	notify   services.ChatBroadcaster
	now      func() time.Time
}

func NewStore(log *logger.Logger, messages chatrepo.MessageRepo, notify services.ChatBroadcaster) *Store {
	return &Store{
		log:      log.With("component", "ChatStore"),
		messages: messages,
		notify:   notify,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) dbc(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx}
}

// CreateAssistant inserts a pending assistant message under parent.
func (s *Store) CreateAssistant(ctx context.Context, threadID uuid.UUID, parentID *uuid.UUID) (*types.Message, error) {
	msg := &types.Message{
		ThreadID: threadID,
		ParentID: parentID,
		Role:     types.RoleAssistant,
		Status:   types.StatusPending,
	}
	if _, err := s.messages.Create(s.dbc(ctx), msg); err != nil {
		return nil, fmt.Errorf("create assistant message: %w", err)
	}
	s.notify.MessageCreated(ctx, msg)
	return msg, nil
}

func (s *Store) Start(ctx context.Context, msg *types.Message) error {
	if err := msg.MarkStarted(s.now()); err != nil {
		return err
	}
	if err := s.messages.UpdateFields(s.dbc(ctx), msg.ID, map[string]interface{}{
		"status":     msg.Status,
		"started_at": msg.StartedAt,
	}); err != nil {
		return fmt.Errorf("persist message start: %w", err)
	}
	s.notify.MessageUpdated(ctx, msg)
	return nil
}

// Append adds chunk to the streaming content. Each call is written and
// broadcast before returning so subscribers see chunks in order.
func (s *Store) Append(ctx context.Context, msg *types.Message, chunk string) error {
	if err := msg.AppendContent(chunk); err != nil {
		return err
	}
	if err := s.messages.UpdateFields(s.dbc(ctx), msg.ID, map[string]interface{}{
		"content": msg.Text(),
	}); err != nil {
		return fmt.Errorf("persist message chunk: %w", err)
	}
	s.notify.MessageStreaming(ctx, msg)
	return nil
}

func (s *Store) Complete(ctx context.Context, msg *types.Message, res RunResult) error {
	usage := types.Usage{InputTokens: res.InputTokens, OutputTokens: res.OutputTokens}
	if err := msg.MarkCompleted(res.Content, res.Model, usage, s.now()); err != nil {
		return err
	}
	if err := s.messages.UpdateFields(s.dbc(ctx), msg.ID, map[string]interface{}{
		"status":        msg.Status,
		"content":       msg.Text(),
		"model":         msg.Model,
		"input_tokens":  msg.InputTokens,
		"output_tokens": msg.OutputTokens,
		"total_tokens":  msg.TotalTokens,
		"completed_at":  msg.CompletedAt,
	}); err != nil {
		return fmt.Errorf("persist message completion: %w", err)
	}
	s.notify.MessageUpdated(ctx, msg)
	return nil
}

// Fail records errText as the message content. The write runs detached so an
// expired turn deadline cannot prevent it.
func (s *Store) Fail(ctx context.Context, msg *types.Message, errText string) error {
	ctx = ctxutil.Detached(ctx)
	if err := msg.MarkFailed(errText, s.now()); err != nil {
		return err
	}
	if err := s.messages.UpdateFields(s.dbc(ctx), msg.ID, map[string]interface{}{
		"status":       msg.Status,
		"content":      msg.Text(),
		"completed_at": msg.CompletedAt,
	}); err != nil {
		return fmt.Errorf("persist message failure: %w", err)
	}
	s.notify.MessageUpdated(ctx, msg)
	return nil
}

// CreateToolCall records an in-flight call as a tool message under the
// assistant message. Content carries the tool name.
func (s *Store) CreateToolCall(ctx context.Context, assistant *types.Message, call llm.ToolCall) (*types.Message, error) {
	name := call.Name
	msg := &types.Message{
		ThreadID: assistant.ThreadID,
		ParentID: &assistant.ID,
		Role:     types.RoleTool,
		Status:   types.StatusSuccess,
		Content:  &name,
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	msg.SetToolCall(chatdomain.ToolCall{
		ID:        call.ID,
		Name:      call.Name,
		Arguments: args,
		Status:    chatdomain.ToolCallCalling,
	})
	if _, err := s.messages.Create(s.dbc(ctx), msg); err != nil {
		return nil, fmt.Errorf("create tool message: %w", err)
	}
	s.notify.ToolCall(ctx, msg)
	return msg, nil
}

// CompleteToolCall merges result into the tool message. msg may be nil, in
// which case it is looked up by call id; a missing message drops the result.
func (s *Store) CompleteToolCall(ctx context.Context, msg *types.Message, callID, result string) (bool, error) {
	if msg == nil {
		found, err := s.messages.FindByToolCallID(s.dbc(ctx), callID)
		if err != nil {
			return false, fmt.Errorf("find tool message: %w", err)
		}
		if found == nil {
			s.log.Debug("tool result without message", "tool_call_id", callID)
			return false, nil
		}
		msg = found
	}
	if err := msg.CompleteToolCall(result); err != nil {
		return false, err
	}
	if err := s.messages.UpdateFields(s.dbc(ctx), msg.ID, map[string]interface{}{
		"tool_call": msg.ToolCall,
	}); err != nil {
		return false, fmt.Errorf("persist tool result: %w", err)
	}
	s.notify.ToolResult(ctx, msg)
	return true, nil
}
