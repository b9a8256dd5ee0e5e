package builtin

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	docrepo "github.com/getnvoi/aven-sub001/internal/data/repos/documents"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/modules/tools"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
)

const defaultSearchLimit = 5

// DocumentSearch ranks the caller's document chunks against a query by cosine
// similarity. A thread with locked documents searches only those.
type DocumentSearch struct {
	Embedder  llm.Embedder
	Documents docrepo.DocumentRepo
}

func (d *DocumentSearch) DefaultDescription() string {
	return "Searches the workspace's uploaded documents and returns the most relevant passages."
}

func (d *DocumentSearch) Call(ctx context.Context, params map[string]any) (any, error) {
	query, _ := params["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	limit := defaultSearchLimit
	if n, ok := params["limit"].(float64); ok && n >= 1 {
		limit = int(n)
	}
	scope, ok := tools.ScopeFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("document search requires a workspace scope")
	}

	chunks, err := d.candidates(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	vecs, err := d.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: no vector")
	}
	q := vecs[0]

	type hit struct {
		chunk *types.DocumentChunk
		score float64
	}
	hits := make([]hit, 0, len(chunks))
	for _, c := range chunks {
		v := c.Vector()
		if len(v) != len(q) {
			continue
		}
		hits = append(hits, hit{chunk: c, score: cosine(q, v)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if len(hits) == 0 {
		return nil, nil
	}
	out := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		out = append(out, map[string]any{
			"document": h.chunk.DocumentID.String(),
			"position": h.chunk.Position,
			"score":    math.Round(h.score*10000) / 10000,
			"content":  h.chunk.Content,
		})
	}
	return out, nil
}

func (d *DocumentSearch) candidates(ctx context.Context, scope tools.Scope) ([]*types.DocumentChunk, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if len(scope.DocumentIDs) == 0 {
		return d.Documents.ListWorkspaceChunks(dbc, scope.WorkspaceID, 0)
	}
	var out []*types.DocumentChunk
	for _, id := range scope.DocumentIDs {
		chunks, err := d.Documents.ListChunks(dbc, id)
		if err != nil {
			return nil, fmt.Errorf("list chunks: %w", err)
		}
		for _, c := range chunks {
			if c.WorkspaceID == scope.WorkspaceID {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
