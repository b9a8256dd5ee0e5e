package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	docrepo "github.com/getnvoi/aven-sub001/internal/data/repos/documents"
	jobrepo "github.com/getnvoi/aven-sub001/internal/data/repos/jobs"
	"github.com/getnvoi/aven-sub001/internal/data/repos/testutil"
	toolrepo "github.com/getnvoi/aven-sub001/internal/data/repos/tools"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	documents "github.com/getnvoi/aven-sub001/internal/domain/documents"
	jobdomain "github.com/getnvoi/aven-sub001/internal/domain/jobs"
	tooldomain "github.com/getnvoi/aven-sub001/internal/domain/tools"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/pkg/pointers"
)

type recordingBroadcaster struct {
	mu      sync.Mutex
	created []*types.Message
}

func (r *recordingBroadcaster) MessageCreated(_ context.Context, m *types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, m)
}
func (r *recordingBroadcaster) MessageUpdated(context.Context, *types.Message)   {}
func (r *recordingBroadcaster) MessageStreaming(context.Context, *types.Message) {}
func (r *recordingBroadcaster) ToolCall(context.Context, *types.Message)         {}
func (r *recordingBroadcaster) ToolResult(context.Context, *types.Message)       {}
func (r *recordingBroadcaster) ThreadUpdated(context.Context, *types.Thread)     {}

type memBlobs struct {
	objects map[string][]byte
}

func (m *memBlobs) Upload(_ context.Context, key, _ string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = b
	return nil
}
func (m *memBlobs) Download(_ context.Context, key string) ([]byte, error) { return m.objects[key], nil }
func (m *memBlobs) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

type catalog map[string]bool

func (c catalog) Has(name string) bool { return c[name] }
func (c catalog) Names() []string {
	var out []string
	for n := range c {
		out = append(out, n)
	}
	return out
}

type fixture struct {
	dbc      dbctx.Context
	threads  chatrepo.ThreadRepo
	messages chatrepo.MessageRepo
	docs     docrepo.DocumentRepo
	jobRuns  jobrepo.JobRunRepo
	jobs     JobService
	events   *recordingBroadcaster
	chat     ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := logger.Nop()
	f := &fixture{
		dbc:      testutil.DBC(t, tx),
		threads:  chatrepo.NewThreadRepo(db, log),
		messages: chatrepo.NewMessageRepo(db, log),
		docs:     docrepo.NewDocumentRepo(db, log),
		jobRuns:  jobrepo.NewJobRunRepo(db, log),
		events:   &recordingBroadcaster{},
	}
	f.jobs = NewJobService(log, f.jobRuns, nil)
	f.chat = NewChatService(db, log, f.threads, f.messages, f.docs, f.jobs, f.events)
	return f
}

func TestAskStartsThreadAndQueuesResponse(t *testing.T) {
	f := newFixture(t)
	ws, user := uuid.New(), uuid.New()

	res, err := f.chat.Ask(f.dbc, AskInput{WorkspaceID: ws, UserID: user, Question: "  What's 2+2?  ", Tools: []string{"calculator"}})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Message.Status != types.StatusSuccess || res.Message.Text() != "What's 2+2?" || res.Message.Role != types.RoleUser {
		t.Fatalf("user message: %+v", res.Message)
	}
	if names, locked := res.Thread.LockedTools(); !locked || len(names) != 1 || names[0] != "calculator" {
		t.Fatalf("tools lock: locked=%v names=%v", locked, names)
	}
	if res.Thread.HasTitle() {
		t.Fatalf("new thread should have no title yet")
	}
	if res.Job.JobType != jobdomain.JobTypeChatRespond || res.Job.Status != jobdomain.StatusQueued {
		t.Fatalf("job: %+v", res.Job)
	}
	var payload map[string]string
	_ = json.Unmarshal(res.Job.Payload, &payload)
	if payload["thread_id"] != res.Thread.ID.String() || payload["user_message_id"] != res.Message.ID.String() {
		t.Fatalf("job payload: %v", payload)
	}
	if len(f.events.created) != 1 || f.events.created[0].ID != res.Message.ID {
		t.Fatalf("message_created broadcasts: got=%d", len(f.events.created))
	}

	// a second ask cannot change the locked toolset
	again, err := f.chat.Ask(f.dbc, AskInput{WorkspaceID: ws, UserID: user, ThreadID: &res.Thread.ID, Question: "and 3+3?", Tools: []string{}})
	if err != nil {
		t.Fatalf("second Ask: %v", err)
	}
	if names, _ := again.Thread.LockedTools(); len(names) != 1 || names[0] != "calculator" {
		t.Fatalf("lock overwritten: %v", names)
	}
	msgs, err := f.chat.ListMessages(f.dbc, ws, res.Thread.ID, 0)
	if err != nil || len(msgs) != 2 || msgs[1].Seq != 2 {
		t.Fatalf("ListMessages: n=%d err=%v", len(msgs), err)
	}
}

func TestAskValidatesInput(t *testing.T) {
	f := newFixture(t)
	ws, user := uuid.New(), uuid.New()

	if _, err := f.chat.Ask(f.dbc, AskInput{WorkspaceID: ws, UserID: user, Question: "   "}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("blank question: want validation, got=%v", err)
	}
	if _, err := f.chat.Ask(f.dbc, AskInput{WorkspaceID: ws, UserID: user, Question: strings.Repeat("a", maxQuestionChars+1)}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("long question: want validation, got=%v", err)
	}

	th, err := f.chat.CreateThread(f.dbc, CreateThreadInput{WorkspaceID: uuid.New(), UserID: user})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if _, err := f.chat.Ask(f.dbc, AskInput{WorkspaceID: ws, UserID: user, ThreadID: &th.ID, Question: "hi"}); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("foreign thread: want not found, got=%v", err)
	}
	if _, err := f.chat.Ask(f.dbc, AskInput{WorkspaceID: ws, UserID: user, Question: "hi", Documents: []uuid.UUID{uuid.New()}}); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("unknown document: want not found, got=%v", err)
	}
}

func TestDeleteThreadCascades(t *testing.T) {
	f := newFixture(t)
	ws, user := uuid.New(), uuid.New()
	res, err := f.chat.Ask(f.dbc, AskInput{WorkspaceID: ws, UserID: user, Question: "hello"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if err := f.chat.DeleteThread(f.dbc, ws, res.Thread.ID); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}
	if _, err := f.chat.GetThread(f.dbc, ws, res.Thread.ID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("deleted thread still readable: %v", err)
	}
	if _, err := f.messages.GetByID(f.dbc, res.Message.ID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("message not cascaded: %v", err)
	}
}

func TestDocumentUploadQueuesOCROnce(t *testing.T) {
	f := newFixture(t)
	blobs := &memBlobs{objects: map[string][]byte{}}
	svc := NewDocumentService(logger.Nop(), f.docs, blobs, f.jobs)
	ws, user := uuid.New(), uuid.New()

	doc, err := svc.Upload(f.dbc, UploadDocumentInput{
		WorkspaceID: ws, UserID: user,
		Filename: "../notes.txt", ContentType: "text/plain",
		Body: bytes.NewBufferString("quarterly notes"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.Filename != "notes.txt" || doc.OCRStatus != documents.OCRPending || doc.EmbeddingStatus != documents.EmbeddingPending {
		t.Fatalf("document: %+v", doc)
	}
	if string(blobs.objects[doc.StorageKey]) != "quarterly notes" {
		t.Fatalf("blob not stored under %s", doc.StorageKey)
	}
	exists, err := f.jobRuns.ExistsRunnable(f.dbc, jobdomain.JobTypeDocumentOCR, jobdomain.EntityTypeDocument, &doc.ID)
	if err != nil || !exists {
		t.Fatalf("ocr job: exists=%v err=%v", exists, err)
	}
	job, err := svc.Reprocess(f.dbc, ws, user, doc.ID)
	if err != nil || job != nil {
		t.Fatalf("reprocess while queued should be a no-op: job=%v err=%v", job, err)
	}
	if _, err := svc.Get(f.dbc, uuid.New(), doc.ID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("foreign workspace read: %v", err)
	}
}

func TestToolServiceValidatesImplementation(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC(t, testutil.Tx(t, db))
	repo := toolrepo.NewToolRepo(db, logger.Nop())
	svc := NewToolService(logger.Nop(), repo, catalog{"builtin.calculator": true})
	ws := uuid.New()

	if _, err := svc.Create(dbc, ToolInput{WorkspaceID: &ws, Name: "calc", Implementation: "ghost"}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("unregistered implementation: want validation, got=%v", err)
	}
	if _, err := svc.Create(dbc, ToolInput{WorkspaceID: &ws, Name: "calc", Implementation: "builtin.calculator",
		Parameters: []tooldomain.Parameter{{Name: "expression", Type: "json"}}}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("bad parameter type: want validation, got=%v", err)
	}

	rec, err := svc.Create(dbc, ToolInput{WorkspaceID: &ws, Name: "calc", Implementation: "builtin.calculator",
		Parameters: []tooldomain.Parameter{{Name: "expression", Type: tooldomain.ParamString, Required: true}}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := rec.UpdatedAt
	updated, err := svc.Update(dbc, ws, rec.ID, ToolPatch{Description: pointers.String("Evaluate math")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if pointers.Deref(updated.Description) != "Evaluate math" || !updated.UpdatedAt.After(before) {
		t.Fatalf("update must move updated_at: before=%v after=%v", before, updated.UpdatedAt)
	}

	global, err := svc.Create(dbc, ToolInput{Name: "calc", Implementation: "builtin.calculator"})
	if err != nil {
		t.Fatalf("global Create: %v", err)
	}
	if _, err := svc.Update(dbc, ws, global.ID, ToolPatch{Enabled: pointers.Ptr(false)}); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("global records are read-only per workspace: %v", err)
	}
}

func TestToolServiceRejectsInvalidNames(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC(t, testutil.Tx(t, db))
	svc := NewToolService(logger.Nop(), toolrepo.NewToolRepo(db, logger.Nop()), catalog{"builtin.calculator": true})
	ws := uuid.New()

	for _, name := range []string{"web search", "", "math.eval", "calc!", strings.Repeat("a", 65)} {
		_, err := svc.Create(dbc, ToolInput{WorkspaceID: &ws, Name: name, Implementation: "builtin.calculator"})
		if !apperr.IsCode(err, apperr.CodeValidation) {
			t.Fatalf("name %q: want validation, got=%v", name, err)
		}
	}
	rec, err := svc.Create(dbc, ToolInput{WorkspaceID: &ws, Name: "  web_search-2  ", Implementation: "builtin.calculator"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Name != "web_search-2" {
		t.Fatalf("name: want=web_search-2 got=%q", rec.Name)
	}
}
