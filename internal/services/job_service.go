package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepo "github.com/getnvoi/aven-sub001/internal/data/repos/jobs"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	jobdomain "github.com/getnvoi/aven-sub001/internal/domain/jobs"
	"github.com/getnvoi/aven-sub001/internal/pkg/ctxutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

// JobService enqueues units of background work. Jobs are rows claimed by the
// worker; enqueueing inside a caller transaction makes the job visible on commit.
type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	EnqueueChatRespond(dbc dbctx.Context, ownerUserID, threadID, userMessageID uuid.UUID) (*types.JobRun, error)
	EnqueueCostCalculation(dbc dbctx.Context, ownerUserID, messageID uuid.UUID) (*types.JobRun, error)
	EnqueueDocumentOCR(dbc dbctx.Context, ownerUserID, documentID uuid.UUID) (*types.JobRun, error)
	EnqueueDocumentEmbed(dbc dbctx.Context, ownerUserID, documentID uuid.UUID) (*types.JobRun, error)
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	log    *logger.Logger
	repo   jobrepo.JobRunRepo
	notify JobNotifier
}

func NewJobService(baseLog *logger.Logger, repo jobrepo.JobRunRepo, notify JobNotifier) JobService {
	return &jobService{
		log:    baseLog.With("service", "JobService"),
		repo:   repo,
		notify: notify,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	now := time.Now()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      jobdomain.StatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Debug("Job enqueued", "job_id", job.ID, "job_type", jobType, "entity_type", entityType)
	if s.notify != nil {
		s.notify.JobCreated(ownerUserID, job)
	}
	return job, nil
}

func (s *jobService) EnqueueChatRespond(dbc dbctx.Context, ownerUserID, threadID, userMessageID uuid.UUID) (*types.JobRun, error) {
	if threadID == uuid.Nil || userMessageID == uuid.Nil {
		return nil, fmt.Errorf("chat_respond requires thread_id and user_message_id")
	}
	return s.Enqueue(dbc, ownerUserID, jobdomain.JobTypeChatRespond, jobdomain.EntityTypeChatThread, &threadID, map[string]any{
		"thread_id":       threadID.String(),
		"user_message_id": userMessageID.String(),
	})
}

func (s *jobService) EnqueueCostCalculation(dbc dbctx.Context, ownerUserID, messageID uuid.UUID) (*types.JobRun, error) {
	if messageID == uuid.Nil {
		return nil, fmt.Errorf("cost_calculate requires message_id")
	}
	return s.Enqueue(dbc, ownerUserID, jobdomain.JobTypeCostCalculate, jobdomain.EntityTypeChatMessage, &messageID, map[string]any{
		"message_id": messageID.String(),
	})
}

func (s *jobService) EnqueueDocumentOCR(dbc dbctx.Context, ownerUserID, documentID uuid.UUID) (*types.JobRun, error) {
	return s.enqueueDocument(dbc, ownerUserID, jobdomain.JobTypeDocumentOCR, documentID)
}

func (s *jobService) EnqueueDocumentEmbed(dbc dbctx.Context, ownerUserID, documentID uuid.UUID) (*types.JobRun, error) {
	return s.enqueueDocument(dbc, ownerUserID, jobdomain.JobTypeDocumentEmbed, documentID)
}

func (s *jobService) enqueueDocument(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, documentID uuid.UUID) (*types.JobRun, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("%s requires document_id", jobType)
	}
	exists, err := s.repo.ExistsRunnable(dbc, jobType, jobdomain.EntityTypeDocument, &documentID)
	if err != nil {
		return nil, err
	}
	if exists {
		s.log.Debug("Document job already runnable; skipping enqueue", "job_type", jobType, "document_id", documentID)
		return nil, nil
	}
	return s.Enqueue(dbc, ownerUserID, jobType, jobdomain.EntityTypeDocument, &documentID, map[string]any{
		"document_id": documentID.String(),
	})
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	return s.repo.GetByID(dbc, jobID)
}

func (s *jobService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID,
		[]string{jobdomain.StatusSucceeded, jobdomain.StatusFailed, jobdomain.StatusCanceled},
		map[string]interface{}{
			"status":    jobdomain.StatusCanceled,
			"stage":     "canceled",
			"message":   "Canceled",
			"locked_at": nil,
		})
	if err != nil {
		return nil, err
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if ok && s.notify != nil {
		s.notify.JobFailed(job.OwnerUserID, job, "canceled", "canceled")
	}
	return job, nil
}
