package app

import (
	"github.com/getnvoi/aven-sub001/internal/jobs/pipeline/chat_respond"
	"github.com/getnvoi/aven-sub001/internal/jobs/pipeline/cost_calculate"
	"github.com/getnvoi/aven-sub001/internal/jobs/pipeline/document_embed"
	"github.com/getnvoi/aven-sub001/internal/jobs/pipeline/document_ocr"
	"github.com/getnvoi/aven-sub001/internal/jobs/runtime"
	"github.com/getnvoi/aven-sub001/internal/jobs/worker"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

func wireJobRegistry(log *logger.Logger, repos Repos, svcs *Services, metrics *observability.Metrics) (*runtime.Registry, error) {
	reg := runtime.NewRegistry()
	handlers := []runtime.Handler{
		chat_respond.New(log, repos.Thread, repos.Message, svcs.Orchestrator),
		cost_calculate.New(log, repos.Message, svcs.Resolver, svcs.Broadcaster).WithMetrics(metrics),
	}
	if svcs.Processor != nil {
		handlers = append(handlers,
			document_ocr.New(log, svcs.Processor),
			document_embed.New(log, svcs.Processor),
		)
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func wireWorker(log *logger.Logger, cfg Config, repos Repos, svcs *Services, metrics *observability.Metrics) (*worker.Worker, error) {
	reg, err := wireJobRegistry(log, repos, svcs, metrics)
	if err != nil {
		return nil, err
	}
	return worker.NewWorker(log, repos.JobRun, reg, svcs.JobNotifier, cfg.Worker).WithMetrics(metrics), nil
}
