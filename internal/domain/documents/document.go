package documents

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OCRStatus string

const (
	OCRPending    OCRStatus = "pending"
	OCRProcessing OCRStatus = "processing"
	OCRCompleted  OCRStatus = "completed"
	OCRSkipped    OCRStatus = "skipped"
	OCRFailed     OCRStatus = "failed"
)

type EmbeddingStatus string

const (
	EmbeddingPending    EmbeddingStatus = "pending"
	EmbeddingProcessing EmbeddingStatus = "processing"
	EmbeddingCompleted  EmbeddingStatus = "completed"
	EmbeddingFailed     EmbeddingStatus = "failed"
)

type Kind string

const (
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindWord    Kind = "word"
	KindExcel   Kind = "excel"
	KindText    Kind = "text"
	KindUnknown Kind = "unknown"
)

// Document is an uploaded file used as agent context.
type Document struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"workspace_id"`
	UploadedBy      uuid.UUID       `gorm:"type:uuid;column:uploaded_by;index" json:"uploaded_by"`
	Filename        string          `gorm:"column:filename;not null" json:"filename"`
	ContentType     string          `gorm:"column:content_type;not null" json:"content_type"`
	ByteSize        int64           `gorm:"column:byte_size;not null;default:0" json:"byte_size"`
	StorageKey      string          `gorm:"column:storage_key;not null" json:"storage_key"`
	OCRStatus       OCRStatus       `gorm:"column:ocr_status;not null;index" json:"ocr_status"`
	ExtractedText   *string         `gorm:"column:extracted_text;type:text" json:"extracted_text,omitempty"`
	EmbeddingStatus EmbeddingStatus `gorm:"column:embedding_status;not null;index" json:"embedding_status"`
	CreatedAt       time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.OCRStatus == "" {
		d.OCRStatus = OCRPending
	}
	if d.EmbeddingStatus == "" {
		d.EmbeddingStatus = EmbeddingPending
	}
	return nil
}

func (d *Document) Text() string {
	if d == nil || d.ExtractedText == nil {
		return ""
	}
	return *d.ExtractedText
}

// ReadyForEmbedding holds when OCR completed with non-empty text.
func (d *Document) ReadyForEmbedding() bool {
	return d != nil && d.OCRStatus == OCRCompleted && strings.TrimSpace(d.Text()) != ""
}

// Kind resolves the extractor family from the content type, falling back to the
// file extension.
func (d *Document) Kind() Kind {
	ct := strings.ToLower(strings.TrimSpace(d.ContentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "application/pdf":
		return KindPDF
	case strings.HasPrefix(ct, "image/"):
		return KindImage
	case ct == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return KindWord
	case ct == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return KindExcel
	case strings.HasPrefix(ct, "text/"), ct == "application/json":
		return KindText
	}
	switch strings.ToLower(filepath.Ext(d.Filename)) {
	case ".pdf":
		return KindPDF
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".tif", ".tiff", ".bmp":
		return KindImage
	case ".docx":
		return KindWord
	case ".xlsx":
		return KindExcel
	case ".txt", ".md", ".csv", ".json":
		return KindText
	}
	return KindUnknown
}

// Chunk is one ordered embedding unit of a document's extracted text.
type Chunk struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID      `gorm:"type:uuid;not null;index:idx_document_chunk_pos,priority:1" json:"document_id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Position    int            `gorm:"column:position;not null;index:idx_document_chunk_pos,priority:2" json:"position"`
	Content     string         `gorm:"column:content;type:text;not null" json:"content"`
	Embedding   datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"-"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (Chunk) TableName() string { return "document_chunk" }

func (c *Chunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *Chunk) Vector() []float32 {
	if c == nil || len(c.Embedding) == 0 {
		return nil
	}
	var v []float32
	if err := json.Unmarshal(c.Embedding, &v); err != nil {
		return nil
	}
	return v
}

func (c *Chunk) SetVector(v []float32) {
	b, _ := json.Marshal(v)
	c.Embedding = datatypes.JSON(b)
}
