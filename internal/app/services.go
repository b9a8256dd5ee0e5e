package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/getnvoi/aven-sub001/internal/ingestion/extractor"
	"github.com/getnvoi/aven-sub001/internal/modules/chat"
	"github.com/getnvoi/aven-sub001/internal/modules/documents"
	"github.com/getnvoi/aven-sub001/internal/modules/tools"
	"github.com/getnvoi/aven-sub001/internal/modules/tools/builtin"
	"github.com/getnvoi/aven-sub001/internal/modules/tools/mcp"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/realtime"
	"github.com/getnvoi/aven-sub001/internal/services"
)

type Services struct {
	Emitter     services.SSEEmitter
	Broadcaster services.ChatBroadcaster
	JobNotifier services.JobNotifier
	Jobs        services.JobService
	Tools       services.ToolService
	Chat        services.ChatService
	// Documents is nil without a blob store.
	Documents services.DocumentService

	ToolRegistry *tools.Registry
	ToolBuilder  *tools.Builder
	MCP          *mcp.Manager
	Resolver     *chat.Resolver
	Orchestrator *chat.Orchestrator
	Processor    *documents.Processor
}

func wireServices(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients *Clients, hub *realtime.SSEHub, metrics *observability.Metrics) (*Services, error) {
	log.Info("Wiring services...")
	s := &Services{}

	if clients.Bus != nil {
		s.Emitter = &services.RedisEmitter{Bus: clients.Bus, Log: log}
	} else {
		s.Emitter = &services.HubEmitter{Hub: hub}
	}
	s.Broadcaster = services.NewChatBroadcaster(s.Emitter)
	s.JobNotifier = services.NewJobNotifier(s.Emitter)
	s.Jobs = services.NewJobService(log, repos.JobRun, s.JobNotifier)

	s.ToolRegistry = tools.NewRegistry()
	if err := builtin.Register(s.ToolRegistry, builtin.Deps{Embedder: clients.OpenAI, Documents: repos.Document}); err != nil {
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}
	mcpCfg, err := mcp.LoadConfig(cfg.MCPConfig)
	if err != nil {
		return nil, err
	}
	s.MCP = mcp.NewManager(log)
	if err := s.MCP.Connect(ctx, mcpCfg, s.ToolRegistry); err != nil {
		return nil, fmt.Errorf("connect mcp servers: %w", err)
	}
	s.ToolBuilder = tools.NewBuilder(log, s.ToolRegistry, repos.Tool)
	s.Tools = services.NewToolService(log, repos.Tool, s.ToolRegistry)

	s.Chat = services.NewChatService(db, log, repos.Thread, repos.Message, repos.Document, s.Jobs, s.Broadcaster)

	pricing, err := chat.LoadPricing(cfg.PricingFile)
	if err != nil {
		return nil, err
	}
	s.Resolver = chat.NewResolver(log, chat.ResolverConfig{
		Model:        cfg.ChatModel,
		SystemPrompt: cfg.SystemPrompt,
	}, s.ToolBuilder, repos.Document, chat.NewPricingCache(pricing, cfg.PricingTTL, time.Now))

	store := chat.NewStore(log, repos.Message, s.Broadcaster)
	s.Orchestrator, err = chat.NewOrchestrator(chat.OrchestratorDeps{
		Log:         log,
		Messages:    repos.Message,
		Store:       store,
		Runner:      chat.NewRunner(log, clients.OpenAI, store).WithMetrics(metrics),
		Resolver:    s.Resolver,
		Titles:      chat.NewTitleGenerator(log, repos.Thread, repos.Message, clients.OpenAI, cfg.TitleModel, s.Broadcaster),
		Costs:       s.Jobs,
		Metrics:     metrics,
		TurnTimeout: cfg.TurnTimeout,
	})
	if err != nil {
		return nil, err
	}

	if clients.Bucket != nil {
		s.Documents = services.NewDocumentService(log, repos.Document, clients.Bucket, s.Jobs)
		s.Processor, err = documents.NewProcessor(documents.ProcessorDeps{
			DB:        db,
			Log:       log,
			Docs:      repos.Document,
			Blobs:     clients.Bucket,
			Extractor: extractor.New(log, clients.PDF, clients.Images),
			Embedder:  clients.OpenAI,
			Jobs:      s.Jobs,
			Config:    cfg.Documents,
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}
