package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/getnvoi/aven-sub001/internal/pkg/ctxutil"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

// Vision runs document text detection on single images.
type Vision struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func NewVision(log *logger.Logger, credentials string) (*Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Vision{log: log.With("service", "gcp.Vision"), client: c}, nil
}

func (s *Vision) OCRImage(ctx context.Context, img []byte, mimeType string) (string, error) {
	if len(img) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 60*time.Second)
	defer cancel()

	resp, err := s.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	if fta := r0.FullTextAnnotation; fta != nil && strings.TrimSpace(fta.Text) != "" {
		return strings.TrimSpace(fta.Text), nil
	}
	// fall back to the plain text detection block
	if len(r0.TextAnnotations) > 0 && r0.TextAnnotations[0] != nil {
		return strings.TrimSpace(r0.TextAnnotations[0].Description), nil
	}
	s.log.Debug("vision returned no text", "mime_type", mimeType, "bytes", len(img))
	return "", nil
}

func (s *Vision) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
