package pdf

import (
	"context"
	"errors"
	"testing"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

func TestSupports(t *testing.T) {
	e := NewExtractor()
	if !e.Supports(".PDF") || e.Supports(".txt") {
		t.Fatalf("unexpected Supports() result")
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), domain.DocumentRef{Key: "broken.pdf"}, []byte("not a pdf at all"))
	if !errors.Is(err, domain.ErrNonRetriable) {
		t.Fatalf("expected non-retriable error, got %v", err)
	}
}
