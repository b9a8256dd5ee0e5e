package tools

import (
	"context"
	"fmt"

	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

// adapter exposes an Implementation under a record's name, description and schema.
type adapter struct {
	log         *logger.Logger
	name        string
	description string
	schema      map[string]any
	impl        Implementation
}

var _ llm.Tool = (*adapter)(nil)

func (a *adapter) Name() string               { return a.name }
func (a *adapter) Description() string        { return a.description }
func (a *adapter) Parameters() map[string]any { return a.schema }

// Execute runs the implementation. Failures come back as "Error: ..." text so
// the model decides how to react.
func (a *adapter) Execute(ctx context.Context, args map[string]any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("tool panic", "tool", a.name, "panic", r)
			out = fmt.Sprintf("Error: %v", r)
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	res, err := a.impl.Call(ctx, args)
	if err != nil {
		a.log.Warn("tool call failed", "tool", a.name, "error", err)
		return "Error: " + err.Error()
	}
	return FormatResult(res)
}
