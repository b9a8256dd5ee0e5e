package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/getnvoi/aven-sub001/internal/http/response"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	jobID, ok := pathUUID(c, "id", "invalid_job_id")
	if !ok {
		return
	}
	job, err := h.jobs.GetByID(dbcOf(c), jobID)
	if err == nil && job.OwnerUserID != rd.UserID {
		err = apperr.NewError(apperr.CodeNotFound, "job.get", "job "+jobID.String()+" not found", apperr.ErrNotFound)
	}
	if err != nil {
		response.RespondAppError(c, "get_job_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	jobID, ok := pathUUID(c, "id", "invalid_job_id")
	if !ok {
		return
	}
	existing, err := h.jobs.GetByID(dbcOf(c), jobID)
	if err == nil && existing.OwnerUserID != rd.UserID {
		err = apperr.NewError(apperr.CodeNotFound, "job.cancel", "job "+jobID.String()+" not found", apperr.ErrNotFound)
	}
	if err != nil {
		response.RespondAppError(c, "cancel_job_failed", err)
		return
	}
	job, err := h.jobs.Cancel(dbcOf(c), jobID)
	if err != nil {
		response.RespondAppError(c, "cancel_job_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
