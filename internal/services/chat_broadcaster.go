package services

import (
	"context"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/realtime"
)

// ChatBroadcaster shapes chat state changes into thread-channel events.
// Delivery is fire-and-forget; nothing here returns an error.
type ChatBroadcaster interface {
	MessageCreated(ctx context.Context, msg *types.Message)
	MessageUpdated(ctx context.Context, msg *types.Message)
	MessageStreaming(ctx context.Context, msg *types.Message)
	ToolCall(ctx context.Context, msg *types.Message)
	ToolResult(ctx context.Context, msg *types.Message)
	ThreadUpdated(ctx context.Context, thread *types.Thread)
}

type chatBroadcaster struct {
	emit SSEEmitter
}

func NewChatBroadcaster(emit SSEEmitter) ChatBroadcaster {
	return &chatBroadcaster{emit: emit}
}

func (b *chatBroadcaster) MessageCreated(ctx context.Context, msg *types.Message) {
	b.message(ctx, realtime.SSEEventMessageCreated, msg)
}

func (b *chatBroadcaster) MessageUpdated(ctx context.Context, msg *types.Message) {
	b.message(ctx, realtime.SSEEventMessageUpdated, msg)
}

func (b *chatBroadcaster) MessageStreaming(ctx context.Context, msg *types.Message) {
	b.message(ctx, realtime.SSEEventMessageStreaming, msg)
}

func (b *chatBroadcaster) ToolCall(ctx context.Context, msg *types.Message) {
	b.message(ctx, realtime.SSEEventToolCall, msg)
}

func (b *chatBroadcaster) ToolResult(ctx context.Context, msg *types.Message) {
	b.message(ctx, realtime.SSEEventToolResult, msg)
}

func (b *chatBroadcaster) ThreadUpdated(ctx context.Context, thread *types.Thread) {
	if b == nil || b.emit == nil || thread == nil {
		return
	}
	b.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.ThreadChannel(thread.ID),
		Event:   realtime.SSEEventThreadUpdate,
		Data: map[string]any{
			"type":   string(realtime.SSEEventThreadUpdate),
			"thread": thread,
		},
	})
}

func (b *chatBroadcaster) message(ctx context.Context, event realtime.SSEEvent, msg *types.Message) {
	if b == nil || b.emit == nil || msg == nil {
		return
	}
	b.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.ThreadChannel(msg.ThreadID),
		Event:   event,
		Data: map[string]any{
			"type":    string(event),
			"message": msg,
		},
	})
}
