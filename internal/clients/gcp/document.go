package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/getnvoi/aven-sub001/internal/pkg/ctxutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Credentials      string
}

// DocumentAI extracts text from PDFs with an OCR processor.
type DocumentAI struct {
	log       *logger.Logger
	client    *documentai.DocumentProcessorClient
	processor string
}

func NewDocumentAI(log *logger.Logger, cfg DocumentAIConfig) (*DocumentAI, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.ProjectID) == "" || strings.TrimSpace(cfg.ProcessorID) == "" {
		return nil, fmt.Errorf("missing DOCUMENTAI_PROJECT_ID or DOCUMENTAI_PROCESSOR_ID")
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us"
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptions(cfg.Credentials)...)
	c, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog := log.With("service", "gcp.DocumentAI")
	slog.Info("Document AI initialized", "endpoint", endpoint)
	return &DocumentAI{
		log:       slog,
		client:    c,
		processor: processorName(cfg.ProjectID, location, cfg.ProcessorID, cfg.ProcessorVersion),
	}, nil
}

func processorName(project, location, processor, version string) string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processor)
	if v := strings.TrimSpace(version); v != "" {
		name += "/processorVersions/" + v
	}
	return name
}

func (s *DocumentAI) ProcessPDF(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 3*time.Minute)
	defer cancel()

	resp, err := s.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
		FieldMask: &fieldmaskpb.FieldMask{Paths: []string{"text"}},
	})
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Document.Text), nil
}

func (s *DocumentAI) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
