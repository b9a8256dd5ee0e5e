package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	toolrepo "github.com/getnvoi/aven-sub001/internal/data/repos/tools"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	tooldomain "github.com/getnvoi/aven-sub001/internal/domain/tools"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type cacheEntry struct {
	updatedAt time.Time
	tool      llm.Tool
}

// Builder turns tool records into llm.Tool adapters and caches them per
// (record id, updated_at). An edit moves updated_at, so the next lookup rebuilds.
type Builder struct {
	log      *logger.Logger
	registry *Registry
	repo     toolrepo.ToolRepo

	mu    sync.RWMutex
	cache map[uuid.UUID]cacheEntry
	group singleflight.Group
}

func NewBuilder(log *logger.Logger, registry *Registry, repo toolrepo.ToolRepo) *Builder {
	return &Builder{
		log:      log.With("component", "ToolBuilder"),
		registry: registry,
		repo:     repo,
		cache:    make(map[uuid.UUID]cacheEntry),
	}
}

// Build materializes rec. It fails when the name is not a valid function name
// or the implementation does not resolve.
func (b *Builder) Build(rec *types.Tool) (llm.Tool, error) {
	if rec == nil {
		return nil, fmt.Errorf("build tool: nil record")
	}
	if !tooldomain.ValidName(rec.Name) {
		return nil, fmt.Errorf("build tool %q: %w", rec.Name, ErrInvalidToolName)
	}
	impl, err := b.registry.Resolve(rec.Implementation)
	if err != nil {
		return nil, fmt.Errorf("build tool %q: %w", rec.Name, err)
	}
	desc := impl.DefaultDescription()
	if rec.Description != nil && strings.TrimSpace(*rec.Description) != "" {
		desc = strings.TrimSpace(*rec.Description)
	}
	return &adapter{
		log:         b.log,
		name:        rec.Name,
		description: desc,
		schema:      ParametersSchema(rec.Params()),
		impl:        impl,
	}, nil
}

func (b *Builder) CachedBuild(rec *types.Tool) (llm.Tool, error) {
	if rec == nil {
		return nil, fmt.Errorf("build tool: nil record")
	}
	b.mu.RLock()
	entry, ok := b.cache[rec.ID]
	b.mu.RUnlock()
	if ok && entry.updatedAt.Equal(rec.UpdatedAt) {
		return entry.tool, nil
	}

	key := rec.ID.String() + ":" + strconv.FormatInt(rec.UpdatedAt.UnixNano(), 10)
	v, err, _ := b.group.Do(key, func() (interface{}, error) {
		t, err := b.Build(rec)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		if cur, ok := b.cache[rec.ID]; !ok || !cur.updatedAt.After(rec.UpdatedAt) {
			b.cache[rec.ID] = cacheEntry{updatedAt: rec.UpdatedAt, tool: t}
		}
		b.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(llm.Tool), nil
}

// ClearCache drops every cached adapter.
func (b *Builder) ClearCache() {
	b.mu.Lock()
	b.cache = make(map[uuid.UUID]cacheEntry)
	b.mu.Unlock()
}

// BuildAll builds every enabled tool visible to the workspace. Records that
// fail to build are logged and skipped.
func (b *Builder) BuildAll(ctx context.Context, workspaceID uuid.UUID) ([]llm.Tool, error) {
	recs, err := b.repo.ListVisible(dbctx.Context{Ctx: ctx}, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	out := make([]llm.Tool, 0, len(recs))
	for _, rec := range recs {
		t, err := b.CachedBuild(rec)
		if err != nil {
			b.log.Warn("skipping tool", "tool", rec.Name, "tool_id", rec.ID, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// EffectiveToolset resolves the tools offered on a thread: everything visible
// when the thread is unlocked, otherwise only the locked names.
func (b *Builder) EffectiveToolset(ctx context.Context, thread *types.Thread) ([]llm.Tool, error) {
	if thread == nil {
		return nil, fmt.Errorf("effective toolset: nil thread")
	}
	names, locked := thread.LockedTools()
	if locked && len(names) == 0 {
		return []llm.Tool{}, nil
	}
	all, err := b.BuildAll(ctx, thread.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !locked {
		return all, nil
	}
	allow := make(map[string]bool, len(names))
	for _, n := range names {
		allow[n] = true
	}
	out := make([]llm.Tool, 0, len(names))
	for _, t := range all {
		if allow[t.Name()] {
			out = append(out, t)
		}
	}
	return out, nil
}
