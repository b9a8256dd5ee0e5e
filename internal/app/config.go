package app

import (
	"strings"
	"time"

	"github.com/getnvoi/aven-sub001/internal/clients/gcp"
	"github.com/getnvoi/aven-sub001/internal/clients/openai"
	"github.com/getnvoi/aven-sub001/internal/jobs/worker"
	"github.com/getnvoi/aven-sub001/internal/modules/chat"
	"github.com/getnvoi/aven-sub001/internal/modules/documents"
	"github.com/getnvoi/aven-sub001/internal/observability"
	"github.com/getnvoi/aven-sub001/internal/pkg/envutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/realtime/bus"
)

const serviceName = "aven-chat"

type Config struct {
	Port        string
	CORSOrigins []string

	OpenAI       openai.Config
	ChatModel    string
	SystemPrompt string
	TitleModel   string
	TurnTimeout  time.Duration
	PricingFile  string
	PricingTTL   time.Duration
	MCPConfig    string

	Redis     bus.RedisConfig
	Bucket    gcp.BucketConfig
	DocAI     gcp.DocumentAIConfig
	VisionOCR bool
	Documents documents.Config

	Worker  worker.Config
	Otel    observability.OtelConfig
	Metrics bool
}

func LoadConfig(log *logger.Logger) Config {
	creds := envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	if creds == "" {
		creds = envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		CORSOrigins: envutil.List("CORS_ALLOW_ORIGINS", nil),
		OpenAI: openai.Config{
			APIKey:        envutil.String("OPENAI_API_KEY", ""),
			BaseURL:       envutil.String("OPENAI_BASE_URL", ""),
			EmbedModel:    envutil.String("EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout:       envutil.Duration("OPENAI_TIMEOUT", 180*time.Second),
			MaxRetries:    envutil.Int("OPENAI_MAX_RETRIES", 2),
			MaxToolRounds: envutil.Int("OPENAI_MAX_TOOL_ROUNDS", 8),
		},
		ChatModel:    envutil.String("CHAT_MODEL", chat.DefaultModel),
		SystemPrompt: envutil.String("CHAT_SYSTEM_PROMPT", chat.DefaultSystemPrompt),
		TurnTimeout:  envutil.Duration("CHAT_TURN_TIMEOUT", chat.DefaultTurnTimeout),
		PricingFile:  envutil.String("PRICING_FILE", ""),
		PricingTTL:   envutil.Duration("PRICING_TTL", chat.DefaultPricingTTL),
		MCPConfig:    envutil.String("MCP_CONFIG_FILE", ""),
		Redis: bus.RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", ""),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
			Channel:  envutil.String("REDIS_CHANNEL", "aven:sse"),
		},
		Bucket: gcp.BucketConfig{
			Bucket:      envutil.String("GCS_DOCUMENT_BUCKET", ""),
			Credentials: creds,
		},
		DocAI: gcp.DocumentAIConfig{
			ProjectID:        envutil.String("DOCUMENTAI_PROJECT_ID", ""),
			Location:         envutil.String("DOCUMENTAI_LOCATION", "us"),
			ProcessorID:      envutil.String("DOCUMENTAI_PROCESSOR_ID", ""),
			ProcessorVersion: envutil.String("DOCUMENTAI_PROCESSOR_VERSION", ""),
			Credentials:      creds,
		},
		VisionOCR: envutil.Bool("VISION_OCR_ENABLED", true),
		Documents: documents.Config{
			ChunkSize:    envutil.Int("DOCUMENT_CHUNK_SIZE", 0),
			ChunkOverlap: envutil.Int("DOCUMENT_CHUNK_OVERLAP", 0),
			BatchSize:    envutil.Int("EMBEDDING_BATCH_SIZE", 0),
			Concurrency:  envutil.Int("EMBEDDING_CONCURRENCY", 0),
		},
		Worker:  worker.ConfigFromEnv(),
		Otel:    observability.OtelConfigFromEnv(serviceName),
		Metrics: envutil.Bool("METRICS_ENABLED", false),
	}
	cfg.TitleModel = envutil.String("TITLE_MODEL", cfg.ChatModel)
	if strings.TrimSpace(cfg.Bucket.Bucket) == "" {
		log.Warn("GCS_DOCUMENT_BUCKET not set; document upload and extraction are disabled")
	}
	return cfg
}
