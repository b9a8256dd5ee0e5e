package tools

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	chatdomain "github.com/getnvoi/aven-sub001/internal/domain/chat"
	tooldomain "github.com/getnvoi/aven-sub001/internal/domain/tools"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/pkg/pointers"
)

type stubImpl struct {
	desc string
	res  any
	err  error
}

func (s stubImpl) DefaultDescription() string { return s.desc }
func (s stubImpl) Call(context.Context, map[string]any) (any, error) {
	return s.res, s.err
}

type fakeToolRepo struct {
	rows []*types.Tool
}

func (f *fakeToolRepo) Create(_ dbctx.Context, t *types.Tool) (*types.Tool, error) { return t, nil }
func (f *fakeToolRepo) GetByID(dbctx.Context, uuid.UUID) (*types.Tool, error)      { return nil, nil }
func (f *fakeToolRepo) ListVisible(dbctx.Context, uuid.UUID) ([]*types.Tool, error) {
	return f.rows, nil
}
func (f *fakeToolRepo) UpdateFields(dbctx.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}

func record(name, impl string) *types.Tool {
	return &types.Tool{ID: uuid.New(), Name: name, Implementation: impl, Enabled: true, UpdatedAt: time.Now()}
}

func newTestBuilder(t *testing.T, rows ...*types.Tool) (*Builder, *int32) {
	t.Helper()
	var builds int32
	reg := NewRegistry()
	for _, impl := range []string{"impl.search", "impl.calc"} {
		impl := impl
		if err := reg.Register(impl, func() (Implementation, error) {
			atomic.AddInt32(&builds, 1)
			return stubImpl{desc: "default " + impl, res: "ok"}, nil
		}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return NewBuilder(logger.Nop(), reg, &fakeToolRepo{rows: rows}), &builds
}

func names(ts []llm.Tool) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Name())
	}
	sort.Strings(out)
	return out
}

func TestRegistryResolveUnregistered(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve("nope")
	if !errors.Is(err, ErrUnregisteredImplementation) {
		t.Fatalf("want ErrUnregisteredImplementation, got=%v", err)
	}
	if err := reg.Register("x", func() (Implementation, error) { return stubImpl{}, nil }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register("x", func() (Implementation, error) { return stubImpl{}, nil }); err == nil {
		t.Fatalf("duplicate register should fail")
	}
}

func TestBuildUsesRecordNameAndDescriptionOverride(t *testing.T) {
	b, _ := newTestBuilder(t)
	rec := record("search", "impl.search")
	rec.SetParams([]tooldomain.Parameter{
		{Name: "query", Type: tooldomain.ParamString, Required: true},
		{Name: "limit", Type: tooldomain.ParamInteger},
	})
	tool, err := b.Build(rec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tool.Name() != "search" || tool.Description() != "default impl.search" {
		t.Fatalf("adapter: name=%s desc=%s", tool.Name(), tool.Description())
	}
	props := tool.Parameters()["properties"].(map[string]any)
	if props["limit"].(map[string]any)["type"] != "number" {
		t.Fatalf("integer should map to number: %v", props["limit"])
	}
	if req := tool.Parameters()["required"].([]string); len(req) != 1 || req[0] != "query" {
		t.Fatalf("required: got=%v", req)
	}

	rec.Description = pointers.String("custom")
	tool, _ = b.Build(rec)
	if tool.Description() != "custom" {
		t.Fatalf("description override: got=%s", tool.Description())
	}

	if _, err := b.Build(record("broken", "impl.missing")); !errors.Is(err, ErrUnregisteredImplementation) {
		t.Fatalf("broken record: want unregistered, got=%v", err)
	}
}

func TestCachedBuildKeysOnUpdatedAt(t *testing.T) {
	b, builds := newTestBuilder(t)
	rec := record("search", "impl.search")

	first, _ := b.CachedBuild(rec)
	second, _ := b.CachedBuild(rec)
	if first != second || atomic.LoadInt32(builds) != 1 {
		t.Fatalf("cache miss on unchanged record: builds=%d", *builds)
	}

	edited := *rec
	edited.UpdatedAt = rec.UpdatedAt.Add(time.Second)
	edited.Description = pointers.String("edited")
	third, _ := b.CachedBuild(&edited)
	if third == first || third.Description() != "edited" {
		t.Fatalf("edit should rebuild")
	}

	b.ClearCache()
	if _, _ = b.CachedBuild(&edited); atomic.LoadInt32(builds) != 3 {
		t.Fatalf("ClearCache should force rebuild: builds=%d", *builds)
	}
}

func TestBuildAllSkipsBrokenRecords(t *testing.T) {
	b, _ := newTestBuilder(t, record("search", "impl.search"), record("ghost", "impl.missing"), record("calculator", "impl.calc"))
	got, err := b.BuildAll(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if strings.Join(names(got), ",") != "calculator,search" {
		t.Fatalf("BuildAll: got=%v", names(got))
	}
}

func TestBuildRejectsInvalidName(t *testing.T) {
	b, _ := newTestBuilder(t)
	if _, err := b.Build(record("web search", "impl.search")); !errors.Is(err, ErrInvalidToolName) {
		t.Fatalf("Build: want ErrInvalidToolName got=%v", err)
	}
}

func TestBuildAllSkipsInvalidNames(t *testing.T) {
	b, _ := newTestBuilder(t, record("web search", "impl.search"), record("calculator", "impl.calc"))
	got, err := b.BuildAll(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if strings.Join(names(got), ",") != "calculator" {
		t.Fatalf("BuildAll: got=%v", names(got))
	}
}

func TestEffectiveToolsetHonoursLock(t *testing.T) {
	b, _ := newTestBuilder(t, record("search", "impl.search"), record("calculator", "impl.calc"))
	ctx := context.Background()

	thread := &types.Thread{ID: uuid.New(), WorkspaceID: uuid.New()}
	all, _ := b.EffectiveToolset(ctx, thread)
	if strings.Join(names(all), ",") != "calculator,search" {
		t.Fatalf("unlocked: got=%v", names(all))
	}

	thread.Tools = chatdomain.EncodeList([]string{"search"})
	only, _ := b.EffectiveToolset(ctx, thread)
	if strings.Join(names(only), ",") != "search" {
		t.Fatalf("locked [search]: got=%v", names(only))
	}

	thread.Tools = chatdomain.EncodeList([]string{})
	none, _ := b.EffectiveToolset(ctx, thread)
	if len(none) != 0 {
		t.Fatalf("locked []: got=%v", names(none))
	}
}

func TestExecuteTurnsErrorsIntoResultText(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register("impl.fail", func() (Implementation, error) {
		return stubImpl{err: errors.New("upstream down")}, nil
	})
	b := NewBuilder(logger.Nop(), reg, &fakeToolRepo{})
	tool, _ := b.Build(record("fail", "impl.fail"))
	if got := tool.Execute(context.Background(), nil); got != "Error: upstream down" {
		t.Fatalf("execute error: got=%q", got)
	}
}

func TestFormatResult(t *testing.T) {
	if got := FormatResult(nil); got != "No results found." {
		t.Fatalf("nil: got=%q", got)
	}
	if got := FormatResult(42); got != "42" {
		t.Fatalf("scalar: got=%q", got)
	}
	got := FormatResult([]any{"a", map[string]any{"title": "b", "score": 1}})
	if !strings.HasPrefix(got, "Found 2 result(s):") || !strings.Contains(got, "1. a") || !strings.Contains(got, "  score: 1") {
		t.Fatalf("list: got=%q", got)
	}
	nested := FormatResult(map[string]any{"outer": map[string]any{"inner": "v"}, "k": "x"})
	if nested != "k: x\nouter:\n  inner: v" {
		t.Fatalf("map: got=%q", nested)
	}
}

func TestFormatResultTruncates(t *testing.T) {
	got := FormatResult(strings.Repeat("a", 60000))
	idx := strings.Index(got, "\n[Result truncated")
	if idx != MaxResultChars {
		t.Fatalf("marker position: want=%d got=%d", MaxResultChars, idx)
	}
	if !strings.HasSuffix(got, "10000 characters omitted]") {
		t.Fatalf("marker suffix: got=%q", got[idx:])
	}
	short := strings.Repeat("b", MaxResultChars)
	if FormatResult(short) != short {
		t.Fatalf("exactly-at-cap output must not be truncated")
	}
}
