package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/pkg/ctxutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/services"
)

var (
	testWS   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testUser = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

type fakeChat struct {
	services.ChatService
	lastAsk services.AskInput
	threads map[uuid.UUID]*types.Thread
}

func (f *fakeChat) Ask(dbc dbctx.Context, in services.AskInput) (*services.AskResult, error) {
	f.lastAsk = in
	thread := &types.Thread{ID: uuid.New(), WorkspaceID: in.WorkspaceID}
	if in.ThreadID != nil {
		thread.ID = *in.ThreadID
	}
	return &services.AskResult{Thread: thread, Message: &types.Message{ID: uuid.New()}, Job: &types.JobRun{ID: uuid.New()}}, nil
}

func (f *fakeChat) GetThread(dbc dbctx.Context, ws, id uuid.UUID) (*types.Thread, error) {
	if t, ok := f.threads[id]; ok && t.WorkspaceID == ws {
		return t, nil
	}
	return nil, apperr.NewError(apperr.CodeNotFound, "thread.get", "thread not found", apperr.ErrNotFound)
}

type fakeJobs struct {
	services.JobService
	job      *types.JobRun
	canceled bool
}

func (f *fakeJobs) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if f.job == nil || f.job.ID != id {
		return nil, apperr.NewError(apperr.CodeNotFound, "job.get", "job not found", apperr.ErrNotFound)
	}
	return f.job, nil
}

func (f *fakeJobs) Cancel(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	f.canceled = true
	return f.job, nil
}

type fakeTools struct {
	services.ToolService
	last services.ToolInput
}

func (f *fakeTools) Create(dbc dbctx.Context, in services.ToolInput) (*types.Tool, error) {
	f.last = in
	return &types.Tool{ID: uuid.New(), Name: in.Name, WorkspaceID: in.WorkspaceID}, nil
}

type fakeDocs struct {
	services.DocumentService
	last services.UploadDocumentInput
	body string
}

func (f *fakeDocs) Upload(dbc dbctx.Context, in services.UploadDocumentInput) (*types.Document, error) {
	f.last = in
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(in.Body)
	f.body = buf.String()
	return &types.Document{ID: uuid.New(), Filename: in.Filename}, nil
}

func withIdentity(c *gin.Context) {
	ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{WorkspaceID: testWS, UserID: testUser})
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

func newEngine(identity bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if identity {
		r.Use(withIdentity)
	}
	return r
}

func do(r http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	r := newEngine(false)
	r.GET("/healthcheck", NewHealthHandler().HealthCheck)
	w := do(r, http.MethodGet, "/healthcheck", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthcheck: want=200 ok got=%d %q", w.Code, w.Body.String())
	}
}

func TestAskUsesPathThread(t *testing.T) {
	chat := &fakeChat{}
	h := NewChatHandler(chat)
	r := newEngine(true)
	r.POST("/api/threads/:id/messages", h.Ask)
	r.POST("/api/messages", h.Ask)

	threadID := uuid.New()
	w := do(r, http.MethodPost, "/api/threads/"+threadID.String()+"/messages", `{"question":"hi","tools":[]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusAccepted, w.Code, w.Body.String())
	}
	if chat.lastAsk.ThreadID == nil || *chat.lastAsk.ThreadID != threadID {
		t.Fatalf("thread id: want=%s got=%v", threadID, chat.lastAsk.ThreadID)
	}
	if chat.lastAsk.Tools == nil || len(chat.lastAsk.Tools) != 0 {
		t.Fatalf("tools: want empty non-nil got=%#v", chat.lastAsk.Tools)
	}
	if chat.lastAsk.Documents != nil {
		t.Fatalf("documents: want nil got=%#v", chat.lastAsk.Documents)
	}
	if chat.lastAsk.WorkspaceID != testWS || chat.lastAsk.UserID != testUser {
		t.Fatalf("identity: got ws=%s user=%s", chat.lastAsk.WorkspaceID, chat.lastAsk.UserID)
	}

	w = do(r, http.MethodPost, "/api/messages", `{"question":"new"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: want=%d got=%d", http.StatusAccepted, w.Code)
	}
	if chat.lastAsk.ThreadID != nil {
		t.Fatalf("thread id: want=nil got=%v", chat.lastAsk.ThreadID)
	}
}

func TestAskRejectsBadInput(t *testing.T) {
	h := NewChatHandler(&fakeChat{})
	r := newEngine(true)
	r.POST("/api/threads/:id/messages", h.Ask)

	cases := []struct {
		name string
		path string
		body string
	}{
		{"missing question", "/api/threads/" + uuid.NewString() + "/messages", `{}`},
		{"bad thread id", "/api/threads/nope/messages", `{"question":"x"}`},
	}
	for _, tc := range cases {
		w := do(r, http.MethodPost, tc.path, tc.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: want=400 got=%d", tc.name, w.Code)
		}
	}
}

func TestGetThreadNotFound(t *testing.T) {
	h := NewChatHandler(&fakeChat{threads: map[uuid.UUID]*types.Thread{}})
	r := newEngine(true)
	r.GET("/api/threads/:id", h.GetThread)
	w := do(r, http.MethodGet, "/api/threads/"+uuid.NewString(), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", w.Code)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "not_found" {
		t.Fatalf("code: want=not_found got=%q", env.Error.Code)
	}
}

func TestRequiresIdentity(t *testing.T) {
	h := NewChatHandler(&fakeChat{})
	r := newEngine(false)
	r.GET("/api/threads", h.ListThreads)
	w := do(r, http.MethodGet, "/api/threads", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", w.Code)
	}
}

func TestJobOwnership(t *testing.T) {
	jobs := &fakeJobs{job: &types.JobRun{ID: uuid.New(), OwnerUserID: uuid.New()}}
	h := NewJobHandler(jobs)
	r := newEngine(true)
	r.GET("/api/jobs/:id", h.GetJob)
	r.POST("/api/jobs/:id/cancel", h.CancelJob)

	if w := do(r, http.MethodGet, "/api/jobs/"+jobs.job.ID.String(), ""); w.Code != http.StatusNotFound {
		t.Fatalf("foreign get: want=404 got=%d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/jobs/"+jobs.job.ID.String()+"/cancel", ""); w.Code != http.StatusNotFound {
		t.Fatalf("foreign cancel: want=404 got=%d", w.Code)
	}
	if jobs.canceled {
		t.Fatalf("foreign cancel reached the service")
	}

	jobs.job.OwnerUserID = testUser
	if w := do(r, http.MethodPost, "/api/jobs/"+jobs.job.ID.String()+"/cancel", ""); w.Code != http.StatusOK {
		t.Fatalf("own cancel: want=200 got=%d", w.Code)
	}
	if !jobs.canceled {
		t.Fatalf("own cancel: want service call")
	}
}

func TestCreateToolIsWorkspaceScoped(t *testing.T) {
	tools := &fakeTools{}
	r := newEngine(true)
	r.POST("/api/tools", NewToolHandler(tools).Create)
	w := do(r, http.MethodPost, "/api/tools", `{"name":"search","implementation":"document_search"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: want=201 got=%d body=%s", w.Code, w.Body.String())
	}
	if tools.last.WorkspaceID == nil || *tools.last.WorkspaceID != testWS {
		t.Fatalf("workspace: want=%s got=%v", testWS, tools.last.WorkspaceID)
	}
}

func TestUploadDocument(t *testing.T) {
	docs := &fakeDocs{}
	r := newEngine(true)
	r.POST("/api/documents", NewDocumentHandler(docs).Upload)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte("hello"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status: want=202 got=%d body=%s", w.Code, w.Body.String())
	}
	if docs.last.Filename != "notes.txt" || docs.body != "hello" {
		t.Fatalf("upload: got filename=%q body=%q", docs.last.Filename, docs.body)
	}

	w = do(r, http.MethodPost, "/api/documents", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: want=400 got=%d", w.Code)
	}
}
