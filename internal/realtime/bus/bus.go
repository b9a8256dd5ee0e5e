package bus

import (
	"context"

	"github.com/getnvoi/aven-sub001/internal/realtime"
)

// Bus relays broadcast messages between processes so that a worker's events
// reach SSE clients connected to any API instance.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Ping(ctx context.Context) error
	Close() error
}
