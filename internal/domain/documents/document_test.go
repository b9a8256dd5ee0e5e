package documents

import "testing"

func TestKindResolution(t *testing.T) {
	cases := []struct {
		doc  Document
		want Kind
	}{
		{Document{ContentType: "application/pdf"}, KindPDF},
		{Document{ContentType: "image/png"}, KindImage},
		{Document{ContentType: "application/octet-stream", Filename: "report.DOCX"}, KindWord},
		{Document{Filename: "sheet.xlsx"}, KindExcel},
		{Document{ContentType: "text/plain; charset=utf-8"}, KindText},
		{Document{Filename: "archive.zip"}, KindUnknown},
	}
	for _, tc := range cases {
		if got := tc.doc.Kind(); got != tc.want {
			t.Fatalf("kind(%q,%q): want=%s got=%s", tc.doc.ContentType, tc.doc.Filename, tc.want, got)
		}
	}
}

func TestReadyForEmbedding(t *testing.T) {
	text := "  "
	d := &Document{OCRStatus: OCRCompleted, ExtractedText: &text}
	if d.ReadyForEmbedding() {
		t.Fatalf("blank text must not be embeddable")
	}
	text = "hello"
	if !d.ReadyForEmbedding() {
		t.Fatalf("completed OCR with text should be embeddable")
	}
	d.OCRStatus = OCRSkipped
	if d.ReadyForEmbedding() {
		t.Fatalf("skipped OCR must not be embeddable")
	}
}
