package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/getnvoi/aven-sub001/internal/http/handlers"
	httpMW "github.com/getnvoi/aven-sub001/internal/http/middleware"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	ChatHandler     *httpH.ChatHandler
	StreamHandler   *httpH.StreamHandler
	ToolHandler     *httpH.ToolHandler
	DocumentHandler *httpH.DocumentHandler
	JobHandler      *httpH.JobHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	api.Use(httpMW.AttachRequestData())
	{
		if cfg.ChatHandler != nil {
			api.POST("/threads", cfg.ChatHandler.CreateThread)
			api.GET("/threads", cfg.ChatHandler.ListThreads)
			api.GET("/threads/:id", cfg.ChatHandler.GetThread)
			api.DELETE("/threads/:id", cfg.ChatHandler.DeleteThread)
			api.GET("/threads/:id/messages", cfg.ChatHandler.ListMessages)
			api.POST("/threads/:id/messages", cfg.ChatHandler.Ask)
			api.POST("/messages", cfg.ChatHandler.Ask)
		}

		// Realtime (SSE)
		if cfg.StreamHandler != nil {
			api.GET("/threads/:id/stream", cfg.StreamHandler.Stream)
		}

		if cfg.ToolHandler != nil {
			api.GET("/tools", cfg.ToolHandler.List)
			api.POST("/tools", cfg.ToolHandler.Create)
			api.PATCH("/tools/:id", cfg.ToolHandler.Update)
			api.GET("/tools/implementations", cfg.ToolHandler.Implementations)
		}

		if cfg.DocumentHandler != nil {
			api.POST("/documents", cfg.DocumentHandler.Upload)
			api.GET("/documents/:id", cfg.DocumentHandler.Get)
			api.POST("/documents/:id/reprocess", cfg.DocumentHandler.Reprocess)
		}

		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
		}
	}

	return r
}
