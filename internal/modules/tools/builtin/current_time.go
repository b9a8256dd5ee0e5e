package builtin

import (
	"context"
	"time"
)

type CurrentTime struct {
	Now func() time.Time
}

func (c *CurrentTime) DefaultDescription() string {
	return "Returns the current UTC date and time in RFC3339 format."
}

func (c *CurrentTime) Call(ctx context.Context, params map[string]any) (any, error) {
	return c.Now().UTC().Format(time.RFC3339), nil
}
