package builtin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/modules/tools"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
)

func TestCalculatorEvaluates(t *testing.T) {
	c, err := NewCalculator()
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	cases := map[string]string{
		"2+2":         "4",
		"(2 + 3) * 4": "20",
		"7.0 / 2.0":   "3.5",
	}
	for expr, want := range cases {
		got, err := c.Call(context.Background(), map[string]any{"expression": expr})
		if err != nil {
			t.Fatalf("%s: %v", expr, err)
		}
		if got != want {
			t.Fatalf("%s: want=%s got=%v", expr, want, got)
		}
	}
}

func TestCalculatorRejectsBadInput(t *testing.T) {
	c, _ := NewCalculator()
	if _, err := c.Call(context.Background(), map[string]any{}); err == nil {
		t.Fatalf("missing expression should fail")
	}
	if _, err := c.Call(context.Background(), map[string]any{"expression": "2 +"}); err == nil {
		t.Fatalf("syntax error should fail")
	}
}

func TestCurrentTimeUsesClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	ct := &CurrentTime{Now: func() time.Time { return fixed }}
	got, _ := ct.Call(context.Background(), nil)
	if got != "2026-03-01T11:00:00Z" {
		t.Fatalf("time: got=%v", got)
	}
}

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = f.vec
	}
	return out, nil
}

type fakeDocs struct {
	byDoc       map[uuid.UUID][]*types.DocumentChunk
	byWorkspace map[uuid.UUID][]*types.DocumentChunk
}

func (f *fakeDocs) Create(dbctx.Context, *types.Document) (*types.Document, error) { return nil, nil }
func (f *fakeDocs) GetByID(dbctx.Context, uuid.UUID) (*types.Document, error)      { return nil, nil }
func (f *fakeDocs) GetByIDs(dbctx.Context, []uuid.UUID) ([]*types.Document, error) { return nil, nil }
func (f *fakeDocs) UpdateFields(dbctx.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}
func (f *fakeDocs) ReplaceChunks(dbctx.Context, uuid.UUID, []*types.DocumentChunk) error {
	return nil
}
func (f *fakeDocs) ListChunks(_ dbctx.Context, id uuid.UUID) ([]*types.DocumentChunk, error) {
	return f.byDoc[id], nil
}
func (f *fakeDocs) ListWorkspaceChunks(_ dbctx.Context, ws uuid.UUID, _ int) ([]*types.DocumentChunk, error) {
	return f.byWorkspace[ws], nil
}

func chunk(ws, doc uuid.UUID, pos int, content string, v []float32) *types.DocumentChunk {
	c := &types.DocumentChunk{WorkspaceID: ws, DocumentID: doc, Position: pos, Content: content}
	c.SetVector(v)
	return c
}

func TestDocumentSearchRanksByCosine(t *testing.T) {
	ws := uuid.New()
	docA, docB := uuid.New(), uuid.New()
	a := chunk(ws, docA, 0, "apples", []float32{1, 0})
	b := chunk(ws, docB, 0, "bananas", []float32{0, 1})
	c := chunk(ws, docB, 1, "mostly apples", []float32{0.9, 0.1})
	repo := &fakeDocs{
		byDoc:       map[uuid.UUID][]*types.DocumentChunk{docA: {a}, docB: {b, c}},
		byWorkspace: map[uuid.UUID][]*types.DocumentChunk{ws: {a, b, c}},
	}
	ds := &DocumentSearch{Embedder: fakeEmbedder{vec: []float32{1, 0}}, Documents: repo}

	ctx := tools.WithScope(context.Background(), tools.Scope{WorkspaceID: ws})
	res, err := ds.Call(ctx, map[string]any{"query": "apple", "limit": float64(2)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	hits := res.([]map[string]any)
	if len(hits) != 2 || hits[0]["content"] != "apples" || hits[1]["content"] != "mostly apples" {
		t.Fatalf("ranking: got=%v", hits)
	}

	locked := tools.WithScope(context.Background(), tools.Scope{WorkspaceID: ws, DocumentIDs: []uuid.UUID{docB}})
	res, _ = ds.Call(locked, map[string]any{"query": "apple"})
	hits = res.([]map[string]any)
	for _, h := range hits {
		if h["document"] != docB.String() {
			t.Fatalf("locked search leaked document %v", h["document"])
		}
	}
}

func TestDocumentSearchRequiresScope(t *testing.T) {
	ds := &DocumentSearch{Embedder: fakeEmbedder{}, Documents: &fakeDocs{}}
	_, err := ds.Call(context.Background(), map[string]any{"query": "x"})
	if err == nil || !strings.Contains(err.Error(), "scope") {
		t.Fatalf("want scope error, got=%v", err)
	}
}

func TestRegisterSkipsSearchWithoutDeps(t *testing.T) {
	reg := tools.NewRegistry()
	if err := Register(reg, Deps{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.Has(CalculatorName) || !reg.Has(CurrentTimeName) {
		t.Fatalf("missing builtins: %v", reg.Names())
	}
	if reg.Has(DocumentSearchName) {
		t.Fatalf("document search needs an embedder")
	}
}
