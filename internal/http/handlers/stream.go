package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/getnvoi/aven-sub001/internal/http/response"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/realtime"
	"github.com/getnvoi/aven-sub001/internal/services"
)

type StreamHandler struct {
	log  *logger.Logger
	hub  *realtime.SSEHub
	chat services.ChatService
}

func NewStreamHandler(log *logger.Logger, hub *realtime.SSEHub, chat services.ChatService) *StreamHandler {
	return &StreamHandler{log: log.With("handler", "StreamHandler"), hub: hub, chat: chat}
}

// GET /api/threads/:id/stream subscribes to the thread's live events and the
// caller's job events.
func (h *StreamHandler) Stream(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	threadID, ok := pathUUID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	if _, err := h.chat.GetThread(dbcOf(c), rd.WorkspaceID, threadID); err != nil {
		response.RespondAppError(c, "stream_failed", err)
		return
	}

	client := h.hub.NewSSEClient(rd.UserID)
	h.hub.AddChannel(client, realtime.ThreadChannel(threadID))
	h.hub.AddChannel(client, realtime.UserChannel(rd.UserID))
	h.log.Debug("SSE stream open", "client_id", client.ID, "thread_id", threadID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}
