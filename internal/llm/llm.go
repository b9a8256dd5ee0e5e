// Package llm holds the provider-neutral contracts for chat generation,
// tool calling and embeddings.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Turn struct {
	Role    string
	Content string
}

// Tool is an executable capability offered to the model. Execute never fails:
// errors are returned as result text for the model to react to.
type Tool interface {
	Name() string
	Description() string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

type ToolResult struct {
	CallID string
	Name   string
	Result string
}

type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

type SessionConfig struct {
	Model        string
	Instructions string
	Tools        []Tool
}

type Provider interface {
	OpenSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is one conversation with the model. Callbacks run on the goroutine
// that called Generate, in event order; a callback error aborts Generate.
type Session interface {
	// AddPriorTurn records history without triggering generation.
	AddPriorTurn(role, content string)
	OnToolCall(fn func(ctx context.Context, call ToolCall) error)
	OnToolResult(fn func(ctx context.Context, result ToolResult) error)
	// Generate streams a reply to prompt, invoking onChunk per content delta.
	Generate(ctx context.Context, prompt string, onChunk func(chunk string) error) (Response, error)
}

// Completer generates a short non-streamed completion.
type Completer interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}
