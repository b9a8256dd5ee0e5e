package realtime

import (
	"strings"

	"github.com/google/uuid"
)

type SSEEvent string

const (
	SSEEventMessageCreated   SSEEvent = "message_created"
	SSEEventMessageUpdated   SSEEvent = "message_updated"
	SSEEventMessageStreaming SSEEvent = "message_streaming"
	SSEEventToolCall         SSEEvent = "tool_call"
	SSEEventToolResult       SSEEvent = "tool_result"
	SSEEventThreadUpdate     SSEEvent = "thread_update"

	SSEEventJobCreated  SSEEvent = "job_created"
	SSEEventJobProgress SSEEvent = "job_progress"
	SSEEventJobFailed   SSEEvent = "job_failed"
	SSEEventJobDone     SSEEvent = "job_done"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

const (
	threadChannelPrefix = "thread:"
	userChannelPrefix   = "user:"
)

// ThreadChannel is the subscription key for live updates of one thread.
func ThreadChannel(threadID uuid.UUID) string {
	return threadChannelPrefix + threadID.String()
}

// UserChannel carries job lifecycle updates for one user.
func UserChannel(userID uuid.UUID) string {
	return userChannelPrefix + userID.String()
}

// ParseThreadChannel returns the thread id encoded in a thread channel name.
func ParseThreadChannel(channel string) (uuid.UUID, bool) {
	if !strings.HasPrefix(channel, threadChannelPrefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(channel, threadChannelPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
