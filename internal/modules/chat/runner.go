package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

var tracer = otel.Tracer("github.com/getnvoi/aven-sub001/internal/modules/chat")

var ErrEmptyHistory = errors.New("chat runner: empty history")

type RunInput struct {
	Assistant    *types.Message
	Model        string
	Instructions string
	Tools        []llm.Tool
	History      []llm.Turn
}

type RunResult struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Runner executes one streaming generation for an assistant message,
// persisting chunks and tool activity as they arrive.
type Runner struct {
	log      *logger.Logger
	provider llm.Provider
	store    *Store
	metrics  *observability.Metrics
}

func NewRunner(log *logger.Logger, provider llm.Provider, store *Store) *Runner {
	return &Runner{
		log:      log.With("component", "ChatRunner"),
		provider: provider,
		store:    store,
	}
}

// WithMetrics counts tool results per tool.
func (r *Runner) WithMetrics(m *observability.Metrics) *Runner {
	r.metrics = m
	return r
}

// Run never retries; any session error is returned to the caller unchanged.
func (r *Runner) Run(ctx context.Context, in RunInput) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "chat.runner")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.model", in.Model),
		attribute.Int("chat.tools", len(in.Tools)),
		attribute.Int("chat.history", len(in.History)),
	)

	res, err := r.run(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunResult{}, err
	}
	span.SetAttributes(
		attribute.Int("chat.input_tokens", res.InputTokens),
		attribute.Int("chat.output_tokens", res.OutputTokens),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, in RunInput) (RunResult, error) {
	if in.Assistant == nil {
		return RunResult{}, fmt.Errorf("chat runner: nil assistant message")
	}
	if len(in.History) == 0 {
		return RunResult{}, ErrEmptyHistory
	}

	session, err := r.provider.OpenSession(ctx, llm.SessionConfig{
		Model:        in.Model,
		Instructions: in.Instructions,
		Tools:        in.Tools,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("open session: %w", err)
	}

	// Providers may interleave several calls in one round, so in-flight calls
	// are tracked by id.
	var (
		mu       sync.Mutex
		inflight = map[string]*types.Message{}
	)
	session.OnToolCall(func(ctx context.Context, call llm.ToolCall) error {
		msg, err := r.store.CreateToolCall(ctx, in.Assistant, call)
		if err != nil {
			return err
		}
		mu.Lock()
		inflight[call.ID] = msg
		mu.Unlock()
		return nil
	})
	session.OnToolResult(func(ctx context.Context, res llm.ToolResult) error {
		mu.Lock()
		msg := inflight[res.CallID]
		delete(inflight, res.CallID)
		mu.Unlock()
		ok, err := r.store.CompleteToolCall(ctx, msg, res.CallID, res.Result)
		if err != nil {
			return err
		}
		if !ok {
			r.metrics.IncToolCall(res.Name, "dropped")
			r.log.Warn("dropping tool result", "tool_call_id", res.CallID, "tool", res.Name)
			return nil
		}
		r.metrics.IncToolCall(res.Name, "completed")
		return nil
	})

	prior, last := in.History[:len(in.History)-1], in.History[len(in.History)-1]
	for _, turn := range prior {
		session.AddPriorTurn(turn.Role, turn.Content)
	}

	var acc strings.Builder
	resp, err := session.Generate(ctx, last.Content, func(chunk string) error {
		if chunk == "" {
			return nil
		}
		acc.WriteString(chunk)
		return r.store.Append(ctx, in.Assistant, chunk)
	})
	if err != nil {
		return RunResult{}, err
	}

	content := acc.String()
	if content == "" {
		content = resp.Content
	}
	model := resp.Model
	if model == "" {
		model = in.Model
	}
	return RunResult{
		Content:      content,
		Model:        model,
		InputTokens:  max(resp.InputTokens, 0),
		OutputTokens: max(resp.OutputTokens, 0),
	}, nil
}
