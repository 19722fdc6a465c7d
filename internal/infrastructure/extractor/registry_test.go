package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/extractor/pdf"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/extractor/plaintext"
)

func TestRegistryDispatchesByExtension(t *testing.T) {
	reg := NewRegistry(pdf.NewExtractor(), plaintext.NewExtractor())
	if !reg.Supports(".pdf") || !reg.Supports(".md") || reg.Supports(".docx") {
		t.Fatalf("unexpected Supports() results")
	}

	text, err := reg.Extract(context.Background(), domain.DocumentRef{Key: "notes/week1.TXT"}, []byte("\ufeffhello\r\nworld "))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "hello\nworld" {
		t.Fatalf("unexpected text %q", text)
	}

	_, err = reg.Extract(context.Background(), domain.DocumentRef{Key: "a.docx"}, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown extension, got %v", err)
	}
}

func TestPlaintextRejectsBinary(t *testing.T) {
	_, err := plaintext.NewExtractor().Extract(context.Background(), domain.DocumentRef{Key: "a.txt"}, []byte{0xff, 0xfe, 0xfd})
	if !errors.Is(err, domain.ErrNonRetriable) {
		t.Fatalf("expected non-retriable error, got %v", err)
	}
}

func TestRegistryWithExtensionsFilters(t *testing.T) {
	reg := NewRegistry(pdf.NewExtractor(), plaintext.NewExtractor()).WithExtensions("pdf", " .TXT ")
	if !reg.Supports(".pdf") || !reg.Supports(".txt") {
		t.Fatalf("expected allowed extensions to be supported")
	}
	if reg.Supports(".md") {
		t.Fatalf("expected .md to be filtered out")
	}
}
