package app

import (
	"fmt"
	"strings"

	"github.com/getnvoi/aven-sub001/internal/clients/gcp"
	"github.com/getnvoi/aven-sub001/internal/clients/openai"
	"github.com/getnvoi/aven-sub001/internal/ingestion/extractor"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/realtime/bus"
)

type Clients struct {
	OpenAI *openai.Client
	// Bus is nil when REDIS_ADDR is unset; broadcasts then stay in-process.
	Bus bus.Bus
	// Bucket is nil when no document bucket is configured.
	Bucket *gcp.BucketStore
	PDF    extractor.PDFProcessor
	Images extractor.ImageOCR

	closers []func() error
}

func wireClients(log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	oa, err := openai.NewClient(log, cfg.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	c.OpenAI = oa

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init redis SSE bus: %w", err)
		}
		c.Bus = b
		c.closers = append(c.closers, b.Close)
	}

	if strings.TrimSpace(cfg.Bucket.Bucket) == "" {
		return c, nil
	}
	bucket, err := gcp.NewBucketStore(log, cfg.Bucket)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init bucket client: %w", err)
	}
	c.Bucket = bucket
	c.closers = append(c.closers, bucket.Close)

	// OCR backends are optional; a document whose kind has no backend is skipped.
	if strings.TrimSpace(cfg.DocAI.ProcessorID) != "" {
		doc, err := gcp.NewDocumentAI(log, cfg.DocAI)
		if err != nil {
			log.Warn("Document AI unavailable; PDFs will be skipped", "error", err)
		} else {
			c.PDF = doc
			c.closers = append(c.closers, doc.Close)
		}
	}
	if cfg.VisionOCR {
		vision, err := gcp.NewVision(log, cfg.Bucket.Credentials)
		if err != nil {
			log.Warn("Vision unavailable; images will be skipped", "error", err)
		} else {
			c.Images = vision
			c.closers = append(c.closers, vision.Close)
		}
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
