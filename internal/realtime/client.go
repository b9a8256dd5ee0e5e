package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

const outboundBuffer = 64

type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	once     sync.Once
	Logger   *logger.Logger
}
