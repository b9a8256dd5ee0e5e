package app

import (
	apphttp "github.com/getnvoi/aven-sub001/internal/http"
	httpH "github.com/getnvoi/aven-sub001/internal/http/handlers"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/realtime"
)

func wireRouterConfig(log *logger.Logger, cfg Config, svcs *Services, hub *realtime.SSEHub, metrics *observability.Metrics) apphttp.RouterConfig {
	log.Info("Wiring handlers...")
	rc := apphttp.RouterConfig{
		Log:           log,
		ServiceName:   serviceName,
		CORSOrigins:   cfg.CORSOrigins,
		Metrics:       metrics,
		HealthHandler: httpH.NewHealthHandler(),
		ChatHandler:   httpH.NewChatHandler(svcs.Chat),
		StreamHandler: httpH.NewStreamHandler(log, hub, svcs.Chat),
		ToolHandler:   httpH.NewToolHandler(svcs.Tools),
		JobHandler:    httpH.NewJobHandler(svcs.Jobs),
	}
	if svcs.Documents != nil {
		rc.DocumentHandler = httpH.NewDocumentHandler(svcs.Documents)
	}
	return rc
}
