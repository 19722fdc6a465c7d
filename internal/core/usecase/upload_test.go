package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/extractor/plaintext"
)

type queueFake struct {
	published  []domain.DocumentRef
	publishErr error
}

func (f *queueFake) PublishDocumentUploaded(_ context.Context, ref domain.DocumentRef) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, ref)
	return nil
}

func (f *queueFake) SubscribeDocumentUploaded(context.Context, func(context.Context, domain.DocumentRef) error) error {
	return nil
}

func TestUploadStoresAndPublishes(t *testing.T) {
	storage := newStorageFake()
	queue := &queueFake{}
	uc := NewUploadDocumentUseCase(storage, queue, plaintext.NewExtractor(), "lectures", "/uploads/")

	ref, err := uc.Upload(context.Background(), "Week 1 Notes.md", "text/markdown", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if ref.Bucket != "lectures" || ref.Key != "uploads/Week_1_Notes.md" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if string(storage.objects[ref.String()]) != "hello" {
		t.Fatalf("document was not stored: %v", storage.objects)
	}
	if len(queue.published) != 1 || queue.published[0] != ref {
		t.Fatalf("expected one published event, got %v", queue.published)
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	storage := newStorageFake()
	queue := &queueFake{}
	uc := NewUploadDocumentUseCase(storage, queue, plaintext.NewExtractor(), "lectures", "")

	_, err := uc.Upload(context.Background(), "slides.pptx", "", strings.NewReader("x"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(storage.objects) != 0 || len(queue.published) != 0 {
		t.Fatalf("unsupported uploads must not be stored or published")
	}
}

func TestUploadPublishFailure(t *testing.T) {
	queue := &queueFake{publishErr: domain.WrapError(domain.ErrTransient, "publish", errors.New("nats down"))}
	uc := NewUploadDocumentUseCase(newStorageFake(), queue, nil, "", "")

	if _, err := uc.Upload(context.Background(), "a.txt", "", strings.NewReader("x")); !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd":      "passwd",
		`C:\docs\lecture 1.pdf`: "lecture_1.pdf",
		"лекция.txt":            "______.txt",
		"..":                    "document.bin",
		"":                      "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
