package chat

import (
	"context"
	"fmt"
	"strings"

	docrepo "github.com/getnvoi/aven-sub001/internal/data/repos/documents"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

const (
	DefaultModel        = "gpt-4o-mini"
	DefaultSystemPrompt = "You are a helpful assistant. Answer concisely and use the available tools when they help."

	// maxReferenceChars caps each document's text in the reference block.
	maxReferenceChars = 8000
)

type ResolverConfig struct {
	Model string
	// SystemPrompt is used when SystemPromptFunc is nil.
	SystemPrompt     string
	SystemPromptFunc func() string
}

// Toolsets resolves the tools offered on a thread.
type Toolsets interface {
	EffectiveToolset(ctx context.Context, thread *types.Thread) ([]llm.Tool, error)
}

// Resolver answers the per-turn policy questions: which model, which
// instructions, which tools, and what a generation cost.
type Resolver struct {
	log     *logger.Logger
	cfg     ResolverConfig
	tools   Toolsets
	docs    docrepo.DocumentRepo
	pricing PricingSource
}

func NewResolver(log *logger.Logger, cfg ResolverConfig, tools Toolsets, docs docrepo.DocumentRepo, pricing PricingSource) *Resolver {
	return &Resolver{
		log:     log.With("component", "ChatResolver"),
		cfg:     cfg,
		tools:   tools,
		docs:    docs,
		pricing: pricing,
	}
}

func (r *Resolver) Model() string {
	if m := strings.TrimSpace(r.cfg.Model); m != "" {
		return m
	}
	return DefaultModel
}

func (r *Resolver) basePrompt() string {
	if r.cfg.SystemPromptFunc != nil {
		if p := strings.TrimSpace(r.cfg.SystemPromptFunc()); p != "" {
			return p
		}
	}
	if p := strings.TrimSpace(r.cfg.SystemPrompt); p != "" {
		return p
	}
	return DefaultSystemPrompt
}

// SystemPrompt returns the base instructions, preceded by a reference block
// when the thread has locked documents with extracted text.
func (r *Resolver) SystemPrompt(ctx context.Context, thread *types.Thread) (string, error) {
	base := r.basePrompt()
	ids, locked := thread.LockedDocuments()
	if !locked || len(ids) == 0 || r.docs == nil {
		return base, nil
	}
	docs, err := r.docs.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return "", fmt.Errorf("load reference documents: %w", err)
	}
	block := referenceBlock(docs)
	if block == "" {
		return base, nil
	}
	return block + "\n\n" + base, nil
}

func referenceBlock(docs []*types.Document) string {
	var b strings.Builder
	for _, d := range docs {
		text := strings.TrimSpace(d.Text())
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > maxReferenceChars {
			text = string(r[:maxReferenceChars]) + "\n[Document truncated]"
		}
		if b.Len() == 0 {
			b.WriteString("Reference documents:")
		}
		fmt.Fprintf(&b, "\n\n### %s\n%s", d.Filename, text)
	}
	return b.String()
}

func (r *Resolver) Tools(ctx context.Context, thread *types.Thread) ([]llm.Tool, error) {
	if r.tools == nil {
		return []llm.Tool{}, nil
	}
	return r.tools.EffectiveToolset(ctx, thread)
}

// CalculateCost returns nil when the model has no known pricing, which is
// distinct from a zero cost.
func (r *Resolver) CalculateCost(ctx context.Context, inputTokens, outputTokens int, model string) *float64 {
	if r.pricing == nil || strings.TrimSpace(model) == "" {
		return nil
	}
	p, ok, err := r.pricing.Lookup(ctx, model)
	if err != nil {
		r.log.Warn("pricing lookup failed", "model", model, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	cost := float64(inputTokens)/1e6*p.Input + float64(outputTokens)/1e6*p.Output
	return &cost
}
