package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Calculator evaluates an arithmetic CEL expression.
type Calculator struct {
	env *cel.Env
}

func NewCalculator() (*Calculator, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	return &Calculator{env: env}, nil
}

func (c *Calculator) DefaultDescription() string {
	return "Evaluates an arithmetic expression such as (2 + 3) * 4. Use decimals like 2.0 for non-integer math."
}

func (c *Calculator) Call(ctx context.Context, params map[string]any) (any, error) {
	expr, _ := params["expression"].(string)
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("expression is required")
	}
	ast, iss := c.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid expression: %w", iss.Err())
	}
	prg, err := c.env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return fmt.Sprint(out.Value()), nil
}
