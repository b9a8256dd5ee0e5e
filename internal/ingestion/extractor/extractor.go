// Package extractor turns uploaded document bytes into plain text.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	docdomain "github.com/getnvoi/aven-sub001/internal/domain/documents"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

// ErrUnsupported marks a document kind no extractor handles.
var ErrUnsupported = errors.New("extractor: unsupported document kind")

type PDFProcessor interface {
	ProcessPDF(ctx context.Context, data []byte, mimeType string) (string, error)
}

type ImageOCR interface {
	OCRImage(ctx context.Context, img []byte, mimeType string) (string, error)
}

type Extractor struct {
	log    *logger.Logger
	pdf    PDFProcessor
	images ImageOCR
}

// New accepts nil processors; documents of that kind then report ErrUnsupported.
func New(log *logger.Logger, pdf PDFProcessor, images ImageOCR) *Extractor {
	return &Extractor{
		log:    log.With("component", "DocumentExtractor"),
		pdf:    pdf,
		images: images,
	}
}

// Extract dispatches on the document kind. The returned text is trimmed and
// valid UTF-8; an empty result with a nil error means the file had no text.
func (e *Extractor) Extract(ctx context.Context, doc *types.Document, data []byte) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("extract: nil document")
	}
	if len(data) == 0 {
		return "", nil
	}
	kind := doc.Kind()
	mime := strings.TrimSpace(doc.ContentType)

	var (
		text string
		err  error
	)
	switch kind {
	case docdomain.KindPDF:
		if e.pdf == nil {
			return "", ErrUnsupported
		}
		text, err = e.pdf.ProcessPDF(ctx, data, firstNonEmpty(mime, "application/pdf"))
	case docdomain.KindImage:
		if e.images == nil {
			return "", ErrUnsupported
		}
		text, err = e.images.OCRImage(ctx, data, mime)
	case docdomain.KindWord:
		text, err = ExtractDocx(data)
	case docdomain.KindExcel:
		text, err = ExtractXlsx(data)
	case docdomain.KindText:
		text = string(data)
	default:
		return "", ErrUnsupported
	}
	if err != nil {
		e.log.Warn("Extraction failed", "document_id", doc.ID, "kind", kind, "error", err)
		return "", fmt.Errorf("extract %s: %w", kind, err)
	}
	text = strings.TrimSpace(sanitizeUTF8(text))
	e.log.Debug("Extraction finished", "document_id", doc.ID, "kind", kind, "chars", utf8.RuneCountInString(text))
	return text, nil
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
