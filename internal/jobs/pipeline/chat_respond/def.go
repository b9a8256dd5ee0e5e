package chat_respond

import (
	"context"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	jobdomain "github.com/getnvoi/aven-sub001/internal/domain/jobs"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

// TurnRunner executes one assistant turn for a persisted user message.
type TurnRunner interface {
	Run(ctx context.Context, thread *types.Thread, userMsg *types.Message) error
}

type Pipeline struct {
	log      *logger.Logger
	threads  chatrepo.ThreadRepo
	messages chatrepo.MessageRepo
	turns    TurnRunner
}

func New(baseLog *logger.Logger, threads chatrepo.ThreadRepo, messages chatrepo.MessageRepo, turns TurnRunner) *Pipeline {
	return &Pipeline{
		log:      baseLog.With("job", jobdomain.JobTypeChatRespond),
		threads:  threads,
		messages: messages,
		turns:    turns,
	}
}

func (p *Pipeline) Type() string { return jobdomain.JobTypeChatRespond }
