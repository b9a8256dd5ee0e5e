package cost_calculate

import (
	"context"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	jobdomain "github.com/getnvoi/aven-sub001/internal/domain/jobs"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/services"
)

type CostCalculator interface {
	CalculateCost(ctx context.Context, inputTokens, outputTokens int, model string) *float64
}

type Pipeline struct {
	log      *logger.Logger
	messages chatrepo.MessageRepo
	costs    CostCalculator
	notify   services.ChatBroadcaster
	metrics  *observability.Metrics
}

func New(baseLog *logger.Logger, messages chatrepo.MessageRepo, costs CostCalculator, notify services.ChatBroadcaster) *Pipeline {
	return &Pipeline{
		log:      baseLog.With("job", jobdomain.JobTypeCostCalculate),
		messages: messages,
		costs:    costs,
		notify:   notify,
	}
}

// WithMetrics adds stored costs to the per-model cost counter.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

func (p *Pipeline) Type() string { return jobdomain.JobTypeCostCalculate }
