package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	docrepo "github.com/getnvoi/aven-sub001/internal/data/repos/documents"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/pkg/ctxutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/pkg/pointers"
)

const maxQuestionChars = 20000

type CreateThreadInput struct {
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	Title       string
	Context     string
	// Tools and Documents lock the thread when non-nil. An empty, non-nil
	// slice locks to nothing.
	Tools     []string
	Documents []uuid.UUID
}

type AskInput struct {
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	// ThreadID nil starts a new thread.
	ThreadID  *uuid.UUID
	Question  string
	Tools     []string
	Documents []uuid.UUID
}

type AskResult struct {
	Thread  *types.Thread
	Message *types.Message
	Job     *types.JobRun
}

// ChatService is the public chat surface: threads, questions and history.
// Answers are produced asynchronously by the chat_respond job.
type ChatService interface {
	CreateThread(dbc dbctx.Context, in CreateThreadInput) (*types.Thread, error)
	Ask(dbc dbctx.Context, in AskInput) (*AskResult, error)
	GetThread(dbc dbctx.Context, workspaceID, threadID uuid.UUID) (*types.Thread, error)
	ListThreads(dbc dbctx.Context, workspaceID, userID uuid.UUID, limit int) ([]*types.Thread, error)
	ListMessages(dbc dbctx.Context, workspaceID, threadID uuid.UUID, limit int) ([]*types.Message, error)
	DeleteThread(dbc dbctx.Context, workspaceID, threadID uuid.UUID) error
}

type chatService struct {
	db       *gorm.DB
	log      *logger.Logger
	threads  chatrepo.ThreadRepo
	messages chatrepo.MessageRepo
	docs     docrepo.DocumentRepo
	jobs     JobService
	notify   ChatBroadcaster
}

func NewChatService(
	db *gorm.DB,
	baseLog *logger.Logger,
	threads chatrepo.ThreadRepo,
	messages chatrepo.MessageRepo,
	docs docrepo.DocumentRepo,
	jobs JobService,
	notify ChatBroadcaster,
) ChatService {
	return &chatService{
		db:       db,
		log:      baseLog.With("service", "ChatService"),
		threads:  threads,
		messages: messages,
		docs:     docs,
		jobs:     jobs,
		notify:   notify,
	}
}

func (s *chatService) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return s.db
}

func (s *chatService) CreateThread(dbc dbctx.Context, in CreateThreadInput) (*types.Thread, error) {
	if in.WorkspaceID == uuid.Nil || in.UserID == uuid.Nil {
		return nil, apperr.NewError(apperr.CodeValidation, "chat.create_thread", "workspace and user required", apperr.ErrInvalidArgument)
	}
	var thread *types.Thread
	err := s.conn(dbc).WithContext(ctxutil.Default(dbc.Ctx)).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctxutil.Default(dbc.Ctx), Tx: txx}
		t, err := s.newThread(inner, in)
		if err != nil {
			return err
		}
		thread = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *chatService) newThread(dbc dbctx.Context, in CreateThreadInput) (*types.Thread, error) {
	thread := &types.Thread{
		WorkspaceID: in.WorkspaceID,
		UserID:      in.UserID,
		Context:     strings.TrimSpace(in.Context),
	}
	if title := strings.TrimSpace(in.Title); title != "" {
		thread.Title = pointers.String(title)
	}
	if in.Tools != nil {
		thread.LockTools(in.Tools)
	}
	if in.Documents != nil {
		if err := s.checkDocuments(dbc, in.WorkspaceID, in.Documents); err != nil {
			return nil, err
		}
		thread.LockDocuments(in.Documents)
	}
	if _, err := s.threads.Create(dbc, thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// checkDocuments rejects ids that do not name documents of the workspace.
func (s *chatService) checkDocuments(dbc dbctx.Context, workspaceID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 || s.docs == nil {
		return nil
	}
	docs, err := s.docs.GetByIDs(dbc, ids)
	if err != nil {
		return err
	}
	found := make(map[uuid.UUID]bool, len(docs))
	for _, d := range docs {
		if d.WorkspaceID == workspaceID {
			found[d.ID] = true
		}
	}
	for _, id := range ids {
		if !found[id] {
			return apperr.NewError(apperr.CodeNotFound, "chat.documents", "document "+id.String()+" not found", apperr.ErrNotFound)
		}
	}
	return nil
}

// Ask records the user's question and queues the answer. The first lock on
// tools or documents wins; later values are ignored.
func (s *chatService) Ask(dbc dbctx.Context, in AskInput) (*AskResult, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, apperr.NewError(apperr.CodeValidation, "chat.ask", "question required", apperr.ErrInvalidArgument)
	}
	if len([]rune(question)) > maxQuestionChars {
		return nil, apperr.NewError(apperr.CodeValidation, "chat.ask", "question too long", apperr.ErrInvalidArgument)
	}
	if in.WorkspaceID == uuid.Nil || in.UserID == uuid.Nil {
		return nil, apperr.NewError(apperr.CodeValidation, "chat.ask", "workspace and user required", apperr.ErrInvalidArgument)
	}

	res := &AskResult{}
	err := s.conn(dbc).WithContext(ctxutil.Default(dbc.Ctx)).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctxutil.Default(dbc.Ctx), Tx: txx}

		var thread *types.Thread
		if in.ThreadID == nil || *in.ThreadID == uuid.Nil {
			t, err := s.newThread(inner, CreateThreadInput{
				WorkspaceID: in.WorkspaceID,
				UserID:      in.UserID,
				Tools:       in.Tools,
				Documents:   in.Documents,
			})
			if err != nil {
				return err
			}
			thread = t
		} else {
			t, err := s.ownedThread(inner, in.WorkspaceID, *in.ThreadID)
			if err != nil {
				return err
			}
			if in.Tools != nil {
				if _, err := s.threads.LockTools(inner, t.ID, in.Tools); err != nil {
					return fmt.Errorf("lock tools: %w", err)
				}
			}
			if in.Documents != nil {
				if err := s.checkDocuments(inner, in.WorkspaceID, in.Documents); err != nil {
					return err
				}
				if _, err := s.threads.LockDocuments(inner, t.ID, in.Documents); err != nil {
					return fmt.Errorf("lock documents: %w", err)
				}
			}
			thread, err = s.threads.GetByID(inner, t.ID)
			if err != nil {
				return err
			}
		}

		msg := &types.Message{
			ThreadID: thread.ID,
			Role:     types.RoleUser,
			Status:   types.StatusSuccess,
			Content:  &question,
		}
		if _, err := s.messages.Create(inner, msg); err != nil {
			return fmt.Errorf("create user message: %w", err)
		}
		job, err := s.jobs.EnqueueChatRespond(inner, in.UserID, thread.ID, msg.ID)
		if err != nil {
			return err
		}
		res.Thread, res.Message, res.Job = thread, msg, job
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.MessageCreated(dbc.Ctx, res.Message)
	s.log.Debug("question queued", "thread_id", res.Thread.ID, "message_id", res.Message.ID, "job_id", res.Job.ID)
	return res, nil
}

func (s *chatService) ownedThread(dbc dbctx.Context, workspaceID, threadID uuid.UUID) (*types.Thread, error) {
	t, err := s.threads.GetByID(dbc, threadID)
	if err != nil {
		return nil, err
	}
	if t.WorkspaceID != workspaceID {
		return nil, apperr.NewError(apperr.CodeNotFound, "thread.get", "thread "+threadID.String()+" not found", apperr.ErrNotFound)
	}
	return t, nil
}

func (s *chatService) GetThread(dbc dbctx.Context, workspaceID, threadID uuid.UUID) (*types.Thread, error) {
	return s.ownedThread(s.repoCtx(dbc), workspaceID, threadID)
}

func (s *chatService) ListThreads(dbc dbctx.Context, workspaceID, userID uuid.UUID, limit int) ([]*types.Thread, error) {
	return s.threads.ListByUser(s.repoCtx(dbc), workspaceID, userID, limit)
}

func (s *chatService) ListMessages(dbc dbctx.Context, workspaceID, threadID uuid.UUID, limit int) ([]*types.Message, error) {
	repoCtx := s.repoCtx(dbc)
	if _, err := s.ownedThread(repoCtx, workspaceID, threadID); err != nil {
		return nil, err
	}
	if limit > 0 {
		return s.messages.ListRecent(repoCtx, threadID, limit)
	}
	return s.messages.ListByThread(repoCtx, threadID)
}

func (s *chatService) DeleteThread(dbc dbctx.Context, workspaceID, threadID uuid.UUID) error {
	repoCtx := s.repoCtx(dbc)
	if _, err := s.ownedThread(repoCtx, workspaceID, threadID); err != nil {
		return err
	}
	return s.threads.Delete(repoCtx, threadID)
}

func (s *chatService) repoCtx(dbc dbctx.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctxutil.Default(dbc.Ctx), Tx: s.conn(dbc)}
}
