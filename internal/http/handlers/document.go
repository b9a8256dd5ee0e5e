package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/getnvoi/aven-sub001/internal/http/response"
	"github.com/getnvoi/aven-sub001/internal/services"
)

type DocumentHandler struct {
	docs services.DocumentService
}

func NewDocumentHandler(docs services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

// POST /api/documents (multipart form, field "file")
func (h *DocumentHandler) Upload(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", err)
		return
	}
	defer f.Close()

	doc, err := h.docs.Upload(dbcOf(c), services.UploadDocumentInput{
		WorkspaceID: rd.WorkspaceID,
		UserID:      rd.UserID,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	})
	if err != nil {
		response.RespondAppError(c, "upload_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"document": doc})
}

// GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "id", "invalid_document_id")
	if !ok {
		return
	}
	doc, err := h.docs.Get(dbcOf(c), rd.WorkspaceID, docID)
	if err != nil {
		response.RespondAppError(c, "get_document_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

// POST /api/documents/:id/reprocess
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "id", "invalid_document_id")
	if !ok {
		return
	}
	job, err := h.docs.Reprocess(dbcOf(c), rd.WorkspaceID, rd.UserID, docID)
	if err != nil {
		response.RespondAppError(c, "reprocess_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}
