package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/getnvoi/aven-sub001/internal/http/response"
	"github.com/getnvoi/aven-sub001/internal/services"
)

type ChatHandler struct {
	chat services.ChatService
}

func NewChatHandler(chat services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type createThreadReq struct {
	Title     string      `json:"title"`
	Context   string      `json:"context"`
	Tools     []string    `json:"tools"`
	Documents []uuid.UUID `json:"documents"`
}

// POST /api/threads
func (h *ChatHandler) CreateThread(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	var req createThreadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	thread, err := h.chat.CreateThread(dbcOf(c), services.CreateThreadInput{
		WorkspaceID: rd.WorkspaceID,
		UserID:      rd.UserID,
		Title:       req.Title,
		Context:     req.Context,
		Tools:       req.Tools,
		Documents:   req.Documents,
	})
	if err != nil {
		response.RespondAppError(c, "create_thread_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"thread": thread})
}

// GET /api/threads?limit=50
func (h *ChatHandler) ListThreads(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	threads, err := h.chat.ListThreads(dbcOf(c), rd.WorkspaceID, rd.UserID, queryLimit(c, 50))
	if err != nil {
		response.RespondAppError(c, "list_threads_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"threads": threads})
}

// GET /api/threads/:id
func (h *ChatHandler) GetThread(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	threadID, ok := pathUUID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	thread, err := h.chat.GetThread(dbcOf(c), rd.WorkspaceID, threadID)
	if err != nil {
		response.RespondAppError(c, "get_thread_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"thread": thread})
}

// DELETE /api/threads/:id
func (h *ChatHandler) DeleteThread(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	threadID, ok := pathUUID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	if err := h.chat.DeleteThread(dbcOf(c), rd.WorkspaceID, threadID); err != nil {
		response.RespondAppError(c, "delete_thread_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/threads/:id/messages?limit=100
func (h *ChatHandler) ListMessages(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	threadID, ok := pathUUID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	msgs, err := h.chat.ListMessages(dbcOf(c), rd.WorkspaceID, threadID, queryLimit(c, 100))
	if err != nil {
		response.RespondAppError(c, "list_messages_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}

type askReq struct {
	Question  string      `json:"question" binding:"required"`
	ThreadID  *uuid.UUID  `json:"thread_id"`
	Tools     []string    `json:"tools"`
	Documents []uuid.UUID `json:"documents"`
}

// POST /api/messages starts a new thread unless thread_id is given.
// POST /api/threads/:id/messages asks within an existing thread.
func (h *ChatHandler) Ask(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	var req askReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if c.Param("id") != "" {
		threadID, ok := pathUUID(c, "id", "invalid_thread_id")
		if !ok {
			return
		}
		req.ThreadID = &threadID
	}
	res, err := h.chat.Ask(dbcOf(c), services.AskInput{
		WorkspaceID: rd.WorkspaceID,
		UserID:      rd.UserID,
		ThreadID:    req.ThreadID,
		Question:    req.Question,
		Tools:       req.Tools,
		Documents:   req.Documents,
	})
	if err != nil {
		response.RespondAppError(c, "ask_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"thread": res.Thread, "message": res.Message, "job": res.Job})
}
