package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/modules/tools"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/ctxutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

const (
	DefaultTurnTimeout = 5 * time.Minute
	titleTimeout       = 30 * time.Second
)

// Titler assigns a thread title from its first user message.
type Titler interface {
	Generate(ctx context.Context, threadID, userMessageID uuid.UUID) error
}

// CostScheduler queues the post-turn cost calculation.
type CostScheduler interface {
	EnqueueCostCalculation(dbc dbctx.Context, ownerUserID, messageID uuid.UUID) (*types.JobRun, error)
}

type OrchestratorDeps struct {
	Log         *logger.Logger
	Messages    chatrepo.MessageRepo
	Store       *Store
	Runner      *Runner
	Resolver    *Resolver
	Titles      Titler
	Costs       CostScheduler
	Metrics     *observability.Metrics
	TurnTimeout time.Duration
}

// Orchestrator drives one assistant turn from a user message to a settled
// assistant message.
type Orchestrator struct {
	deps OrchestratorDeps
	log  *logger.Logger

	titles sync.WaitGroup
}

func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Log == nil || deps.Messages == nil || deps.Store == nil || deps.Runner == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("chat orchestrator: missing deps")
	}
	if deps.TurnTimeout <= 0 {
		deps.TurnTimeout = DefaultTurnTimeout
	}
	return &Orchestrator{deps: deps, log: deps.Log.With("service", "Orchestrator")}, nil
}

// Run answers userMsg on thread. On failure the assistant message is marked
// errored and the error is returned for the caller's retry policy.
func (o *Orchestrator) Run(ctx context.Context, thread *types.Thread, userMsg *types.Message) (err error) {
	if thread == nil || userMsg == nil {
		return fmt.Errorf("chat turn: thread and user message required")
	}
	ctx, span := tracer.Start(ctx, "chat.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.thread_id", thread.ID.String()),
		attribute.String("chat.user_message_id", userMsg.ID.String()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	log := o.log.With("thread_id", thread.ID, "user_message_id", userMsg.ID)

	parent := userMsg.ID
	assistant, err := o.deps.Store.CreateAssistant(ctx, thread.ID, &parent)
	if err != nil {
		return err
	}
	if err := o.deps.Store.Start(ctx, assistant); err != nil {
		return o.fail(ctx, log, assistant, err)
	}
	span.SetAttributes(attribute.String("chat.assistant_message_id", assistant.ID.String()))

	o.maybeScheduleTitle(ctx, log, thread, userMsg)

	started := time.Now()
	res, err := o.turn(ctx, thread, assistant)
	if err != nil {
		o.deps.Metrics.ObserveLLMRequest(o.deps.Resolver.Model(), "error", time.Since(started), 0, 0)
		return o.fail(ctx, log, assistant, err)
	}
	o.deps.Metrics.ObserveLLMRequest(res.Model, "success", time.Since(started), res.InputTokens, res.OutputTokens)
	if err := o.deps.Store.Complete(ctx, assistant, res); err != nil {
		return o.fail(ctx, log, assistant, err)
	}

	if o.deps.Costs != nil {
		if _, err := o.deps.Costs.EnqueueCostCalculation(dbctx.Context{Ctx: ctx}, thread.UserID, assistant.ID); err != nil {
			log.Warn("cost calculation not scheduled", "assistant_message_id", assistant.ID, "error", err)
		}
	}
	log.Info("chat turn completed",
		"assistant_message_id", assistant.ID,
		"model", res.Model,
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
	)
	return nil
}

func (o *Orchestrator) turn(ctx context.Context, thread *types.Thread, assistant *types.Message) (RunResult, error) {
	msgs, err := o.deps.Messages.ListByThread(dbctx.Context{Ctx: ctx}, thread.ID)
	if err != nil {
		return RunResult{}, fmt.Errorf("load history: %w", err)
	}
	history := BuildHistory(msgs)

	instructions, err := o.deps.Resolver.SystemPrompt(ctx, thread)
	if err != nil {
		return RunResult{}, err
	}
	toolset, err := o.deps.Resolver.Tools(ctx, thread)
	if err != nil {
		return RunResult{}, fmt.Errorf("resolve tools: %w", err)
	}

	docIDs, _ := thread.LockedDocuments()
	runCtx := tools.WithScope(ctx, tools.Scope{
		WorkspaceID: thread.WorkspaceID,
		ThreadID:    thread.ID,
		DocumentIDs: docIDs,
	})
	runCtx, cancel := context.WithTimeout(runCtx, o.deps.TurnTimeout)
	defer cancel()

	res, err := o.deps.Runner.Run(runCtx, RunInput{
		Assistant:    assistant,
		Model:        o.deps.Resolver.Model(),
		Instructions: instructions,
		Tools:        toolset,
		History:      history,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return RunResult{}, fmt.Errorf("response timed out after %s: %w", o.deps.TurnTimeout, err)
		}
		return RunResult{}, err
	}
	return res, nil
}

func (o *Orchestrator) fail(ctx context.Context, log *logger.Logger, assistant *types.Message, cause error) error {
	log.Error("chat turn failed", "assistant_message_id", assistant.ID, "error", cause)
	if err := o.deps.Store.Fail(ctx, assistant, cause.Error()); err != nil {
		log.Error("could not record turn failure", "assistant_message_id", assistant.ID, "error", err)
	}
	return cause
}

// maybeScheduleTitle launches title generation when no user message precedes
// userMsg in the thread. Later questions queued behind it do not count.
func (o *Orchestrator) maybeScheduleTitle(ctx context.Context, log *logger.Logger, thread *types.Thread, userMsg *types.Message) {
	if o.deps.Titles == nil || thread.HasTitle() {
		return
	}
	prior, err := o.deps.Messages.CountUserMessagesBefore(dbctx.Context{Ctx: ctx}, thread.ID, userMsg.Seq)
	if err != nil {
		log.Warn("first-message check failed; skipping title", "error", err)
		return
	}
	if prior > 0 {
		return
	}
	detached := ctxutil.Detached(ctx)
	o.titles.Add(1)
	go func() {
		defer o.titles.Done()
		tctx, cancel := context.WithTimeout(detached, titleTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error("title generation panicked", "panic", r)
			}
		}()
		if err := o.deps.Titles.Generate(tctx, thread.ID, userMsg.ID); err != nil {
			log.Warn("title generation failed", "error", err)
		}
	}()
}

// Wait blocks until detached title tasks have finished.
func (o *Orchestrator) Wait() {
	o.titles.Wait()
}
