package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	tooldomain "github.com/getnvoi/aven-sub001/internal/domain/tools"
	"github.com/getnvoi/aven-sub001/internal/http/response"
	"github.com/getnvoi/aven-sub001/internal/services"
)

type ToolHandler struct {
	tools services.ToolService
}

func NewToolHandler(tools services.ToolService) *ToolHandler {
	return &ToolHandler{tools: tools}
}

// GET /api/tools
func (h *ToolHandler) List(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	list, err := h.tools.ListVisible(dbcOf(c), rd.WorkspaceID)
	if err != nil {
		response.RespondAppError(c, "list_tools_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"tools": list, "implementations": h.tools.Implementations()})
}

type createToolReq struct {
	Name           string                 `json:"name" binding:"required"`
	Implementation string                 `json:"implementation" binding:"required"`
	Description    *string                `json:"description"`
	Parameters     []tooldomain.Parameter `json:"parameters"`
	Enabled        *bool                  `json:"enabled"`
}

// POST /api/tools creates a workspace-scoped tool.
func (h *ToolHandler) Create(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	var req createToolReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ws := rd.WorkspaceID
	tool, err := h.tools.Create(dbcOf(c), services.ToolInput{
		WorkspaceID:    &ws,
		Name:           req.Name,
		Implementation: req.Implementation,
		Description:    req.Description,
		Parameters:     req.Parameters,
		Enabled:        req.Enabled,
	})
	if err != nil {
		response.RespondAppError(c, "create_tool_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"tool": tool})
}

type updateToolReq struct {
	Description *string                 `json:"description"`
	Parameters  *[]tooldomain.Parameter `json:"parameters"`
	Enabled     *bool                   `json:"enabled"`
}

// PATCH /api/tools/:id
func (h *ToolHandler) Update(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	toolID, ok := pathUUID(c, "id", "invalid_tool_id")
	if !ok {
		return
	}
	var req updateToolReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	tool, err := h.tools.Update(dbcOf(c), rd.WorkspaceID, toolID, services.ToolPatch{
		Description: req.Description,
		Parameters:  req.Parameters,
		Enabled:     req.Enabled,
	})
	if err != nil {
		response.RespondAppError(c, "update_tool_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"tool": tool})
}

// GET /api/tools/implementations
func (h *ToolHandler) Implementations(c *gin.Context) {
	response.RespondOK(c, gin.H{"implementations": h.tools.Implementations()})
}
