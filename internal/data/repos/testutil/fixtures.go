package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	docdomain "github.com/getnvoi/aven-sub001/internal/domain/documents"
)

func SeedThread(tb testing.TB, tx *gorm.DB, workspaceID, userID uuid.UUID) *types.Thread {
	tb.Helper()
	th := &types.Thread{ID: uuid.New(), WorkspaceID: workspaceID, UserID: userID}
	if err := tx.Create(th).Error; err != nil {
		tb.Fatalf("seed thread: %v", err)
	}
	return th
}

// SeedMessage appends a message with the next sequence number.
func SeedMessage(tb testing.TB, tx *gorm.DB, threadID uuid.UUID, role types.Role, status types.Status, content string) *types.Message {
	tb.Helper()
	var maxSeq int64
	if err := tx.Model(&types.Message{}).Where("thread_id = ?", threadID).
		Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
		tb.Fatalf("seed message seq: %v", err)
	}
	c := content
	m := &types.Message{
		ID:       uuid.New(),
		ThreadID: threadID,
		Seq:      maxSeq + 1,
		Role:     role,
		Status:   status,
		Content:  &c,
	}
	if err := tx.Create(m).Error; err != nil {
		tb.Fatalf("seed message: %v", err)
	}
	return m
}

func SeedDocument(tb testing.TB, tx *gorm.DB, workspaceID uuid.UUID, filename, contentType, text string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		UploadedBy:  uuid.New(),
		Filename:    filename,
		ContentType: contentType,
		StorageKey:  "documents/" + workspaceID.String() + "/" + filename,
	}
	if text != "" {
		d.ExtractedText = &text
		d.OCRStatus = docdomain.OCRCompleted
	}
	if err := tx.Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}
