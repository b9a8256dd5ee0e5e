package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/getnvoi/aven-sub001/internal/data/db"
	apphttp "github.com/getnvoi/aven-sub001/internal/http"
	"github.com/getnvoi/aven-sub001/internal/jobs/worker"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/envutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/realtime"
)

type Mode string

const (
	ModeAPI    Mode = "api"
	ModeWorker Mode = "worker"
	ModeAll    Mode = "all"
)

func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeAll, nil
	case ModeAPI, ModeWorker, ModeAll:
		return m, nil
	default:
		return "", fmt.Errorf("unknown run mode %q (want api, worker or all)", raw)
	}
}

func (m Mode) serves() bool { return m == ModeAPI || m == ModeAll }
func (m Mode) works() bool { return m == ModeWorker || m == ModeAll }

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Mode     Mode
	Repos    Repos
	Clients  *Clients
	Services *Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics
	Server   *apphttp.Server
	Worker   *worker.Worker

	otelShutdown func(context.Context) error
}

func New(ctx context.Context, mode Mode) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With("mode", string(mode))

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	a := &App{Log: log, Cfg: cfg, Mode: mode}
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)
	a.Metrics = observability.Init(log, cfg.Metrics)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		a.Close()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	a.DB = pg.DB()

	a.SSEHub = realtime.NewSSEHub(log)
	a.Repos = wireRepos(a.DB, log)

	a.Clients, err = wireClients(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services, err = wireServices(ctx, a.DB, log, cfg, a.Repos, a.Clients, a.SSEHub, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	if mode.works() {
		a.Worker, err = wireWorker(log, cfg, a.Repos, a.Services, a.Metrics)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	if mode.serves() {
		a.Server = apphttp.NewServer(log, ":"+cfg.Port, wireRouterConfig(log, cfg, a.Services, a.SSEHub, a.Metrics))
	}
	return a, nil
}

// Run blocks until ctx is canceled and every started component has stopped.
func (a *App) Run(ctx context.Context) error {
	if a == nil || (a.Server == nil && a.Worker == nil) {
		return fmt.Errorf("app not initialized")
	}

	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
	if a.Clients.Bus != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Bus)
		if a.Server != nil {
			if err := a.Clients.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
				return fmt.Errorf("start SSE forwarder: %w", err)
			}
		}
	}

	if a.Worker != nil {
		a.Worker.Start(ctx)
	}

	var runErr error
	if a.Server != nil {
		runErr = a.Server.Run(ctx, 15*time.Second)
	} else {
		<-ctx.Done()
	}

	if a.Worker != nil {
		a.Worker.Wait()
	}
	a.Services.Orchestrator.Wait()
	return runErr
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services != nil && a.Services.MCP != nil {
		a.Services.MCP.Close()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
