package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
)

type memMessages struct {
	chatrepo.MessageRepo

	mu   sync.Mutex
	seq  map[uuid.UUID]int64
	rows map[uuid.UUID]*types.Message
}

func newMemMessages() *memMessages {
	return &memMessages{seq: map[uuid.UUID]int64{}, rows: map[uuid.UUID]*types.Message{}}
}

func (m *memMessages) Create(_ dbctx.Context, msg *types.Message) (*types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	m.seq[msg.ThreadID]++
	msg.Seq = m.seq[msg.ThreadID]
	msg.CreatedAt = time.Now()
	cp := *msg
	m.rows[msg.ID] = &cp
	return msg, nil
}

func (m *memMessages) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memMessages) ListByThread(_ dbctx.Context, threadID uuid.UUID) ([]*types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Message
	for _, row := range m.rows {
		if row.ThreadID == threadID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memMessages) FindByToolCallID(_ dbctx.Context, callID string) (*types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ToolCallID != nil && *row.ToolCallID == callID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memMessages) CountUserMessagesBefore(_ dbctx.Context, threadID uuid.UUID, seq int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.ThreadID == threadID && row.Role == types.RoleUser && row.Seq < seq {
			n++
		}
	}
	return n, nil
}

func (m *memMessages) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return apperr.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			row.Status = v.(types.Status)
		case "content":
			s := v.(string)
			row.Content = &s
		case "model":
			row.Model = v.(string)
		case "input_tokens":
			row.InputTokens = v.(int)
		case "output_tokens":
			row.OutputTokens = v.(int)
		case "total_tokens":
			row.TotalTokens = v.(int)
		case "started_at":
			row.StartedAt = v.(*time.Time)
		case "completed_at":
			row.CompletedAt = v.(*time.Time)
		case "tool_call":
			row.ToolCall = v.(datatypes.JSON)
		case "cost":
			row.Cost = v.(*float64)
		default:
			return fmt.Errorf("fake: unsupported column %q", k)
		}
	}
	return nil
}

func (m *memMessages) byRole(threadID uuid.UUID, role types.Role) []*types.Message {
	all, _ := m.ListByThread(dbctx.Context{}, threadID)
	var out []*types.Message
	for _, row := range all {
		if row.Role == role {
			out = append(out, row)
		}
	}
	return out
}

func (m *memMessages) addUser(threadID uuid.UUID, text string) *types.Message {
	msg := &types.Message{ThreadID: threadID, Role: types.RoleUser, Status: types.StatusSuccess, Content: &text}
	_, _ = m.Create(dbctx.Context{}, msg)
	return msg
}

type memThreads struct {
	chatrepo.ThreadRepo

	mu   sync.Mutex
	rows map[uuid.UUID]*types.Thread
}

func newMemThreads(threads ...*types.Thread) *memThreads {
	m := &memThreads{rows: map[uuid.UUID]*types.Thread{}}
	for _, t := range threads {
		m.rows[t.ID] = t
	}
	return m
}

func (m *memThreads) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memThreads) SetTitleIfEmpty(_ dbctx.Context, id uuid.UUID, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return false, apperr.ErrNotFound
	}
	if t.HasTitle() {
		return false, nil
	}
	t.Title = &title
	return true, nil
}

type event struct {
	kind    string
	msgID   uuid.UUID
	status  types.Status
	content string
}

type recorder struct {
	mu     sync.Mutex
	events []event
	thread []*types.Thread
}

func (r *recorder) add(kind string, msg *types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: kind, msgID: msg.ID, status: msg.Status, content: msg.Text()})
}

func (r *recorder) MessageCreated(_ context.Context, m *types.Message)   { r.add("message_created", m) }
func (r *recorder) MessageUpdated(_ context.Context, m *types.Message)   { r.add("message_updated", m) }
func (r *recorder) MessageStreaming(_ context.Context, m *types.Message) { r.add("message_streaming", m) }
func (r *recorder) ToolCall(_ context.Context, m *types.Message)         { r.add("tool_call", m) }
func (r *recorder) ToolResult(_ context.Context, m *types.Message)       { r.add("tool_result", m) }
func (r *recorder) ThreadUpdated(_ context.Context, t *types.Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thread = append(r.thread, t)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

// step is one scripted provider event: a content chunk or a tool call.
type step struct {
	chunk string
	call  *llm.ToolCall
}

type scriptedProvider struct {
	steps   []step
	err     error
	block   bool
	model   string
	usage   [2]int
	opened  []llm.SessionConfig
	session *scriptedSession
}

func (p *scriptedProvider) OpenSession(_ context.Context, cfg llm.SessionConfig) (llm.Session, error) {
	p.opened = append(p.opened, cfg)
	p.session = &scriptedSession{p: p, cfg: cfg}
	return p.session, nil
}

type scriptedSession struct {
	p        *scriptedProvider
	cfg      llm.SessionConfig
	prior    []llm.Turn
	prompt   string
	onCall   func(context.Context, llm.ToolCall) error
	onResult func(context.Context, llm.ToolResult) error
}

func (s *scriptedSession) AddPriorTurn(role, content string) {
	s.prior = append(s.prior, llm.Turn{Role: role, Content: content})
}
func (s *scriptedSession) OnToolCall(fn func(context.Context, llm.ToolCall) error) { s.onCall = fn }
func (s *scriptedSession) OnToolResult(fn func(context.Context, llm.ToolResult) error) {
	s.onResult = fn
}

func (s *scriptedSession) Generate(ctx context.Context, prompt string, onChunk func(string) error) (llm.Response, error) {
	s.prompt = prompt
	var full string
	for _, st := range s.p.steps {
		if st.call != nil {
			if err := s.onCall(ctx, *st.call); err != nil {
				return llm.Response{}, err
			}
			result := "Error: unknown tool " + st.call.Name
			for _, t := range s.cfg.Tools {
				if t.Name() == st.call.Name {
					result = t.Execute(ctx, st.call.Arguments)
				}
			}
			if err := s.onResult(ctx, llm.ToolResult{CallID: st.call.ID, Name: st.call.Name, Result: result}); err != nil {
				return llm.Response{}, err
			}
			continue
		}
		full += st.chunk
		if err := onChunk(st.chunk); err != nil {
			return llm.Response{}, err
		}
	}
	if s.p.block {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	if s.p.err != nil {
		return llm.Response{}, s.p.err
	}
	return llm.Response{Content: full, Model: s.p.model, InputTokens: s.p.usage[0], OutputTokens: s.p.usage[1]}, nil
}

type countingTitler struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTitler) Generate(context.Context, uuid.UUID, uuid.UUID) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return nil
}

func (c *countingTitler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type costRecorder struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (c *costRecorder) EnqueueCostCalculation(_ dbctx.Context, _ uuid.UUID, messageID uuid.UUID) (*types.JobRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, messageID)
	return &types.JobRun{}, nil
}

type adderTool struct{}

func (adderTool) Name() string        { return "calculator" }
func (adderTool) Description() string { return "adds numbers" }
func (adderTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (adderTool) Execute(_ context.Context, args map[string]any) string {
	return fmt.Sprint(args["expression"], " = 4")
}

type staticToolsets []llm.Tool

func (s staticToolsets) EffectiveToolset(context.Context, *types.Thread) ([]llm.Tool, error) {
	return s, nil
}

var dbcNone = dbctx.Context{}
