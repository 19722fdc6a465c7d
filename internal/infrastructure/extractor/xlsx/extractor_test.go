package xlsx

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

func TestExtractFlattensSheets(t *testing.T) {
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "Week")
	_ = f.SetCellValue("Sheet1", "B1", "Topic")
	_ = f.SetCellValue("Sheet1", "A2", 1)
	_ = f.SetCellValue("Sheet1", "B2", "Linear regression")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	text, err := NewExtractor().Extract(context.Background(), domain.DocumentRef{Key: "syllabus.xlsx"}, buf.Bytes())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.HasPrefix(text, "Sheet: Sheet1\n") || !strings.Contains(text, "1\tLinear regression") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractRejectsNonWorkbook(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), domain.DocumentRef{Key: "x.xlsx"}, []byte("nope"))
	if !errors.Is(err, domain.ErrNonRetriable) {
		t.Fatalf("expected non-retriable error, got %v", err)
	}
}
