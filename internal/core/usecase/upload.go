package usecase

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
)

type UploadDocumentUseCase struct {
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	extractor ports.TextExtractor
	bucket    string
	prefix    string
}

// NewUploadDocumentUseCase stores uploads under bucket/prefix. The object key is derived from
// the filename only, so uploading the same file again re-ingests the same document.
func NewUploadDocumentUseCase(
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	extractor ports.TextExtractor,
	bucket, prefix string,
) *UploadDocumentUseCase {
	return &UploadDocumentUseCase{
		storage:   storage,
		queue:     queue,
		extractor: extractor,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
	}
}

func (uc *UploadDocumentUseCase) Upload(
	ctx context.Context,
	filename, contentType string,
	body io.Reader,
) (domain.DocumentRef, error) {
	name := sanitizeFilename(filename)
	ref := domain.DocumentRef{Bucket: uc.bucket, Key: path.Join(uc.prefix, name)}
	if uc.extractor != nil && !uc.extractor.Supports(ref.Extension()) {
		return domain.DocumentRef{}, domain.WrapError(
			domain.ErrInvalidInput,
			"upload document",
			fmt.Errorf("unsupported file type %q", ref.Extension()),
		)
	}

	if err := uc.storage.Save(ctx, ref, contentType, body); err != nil {
		return domain.DocumentRef{}, fmt.Errorf("save to object storage: %w", err)
	}

	if err := uc.queue.PublishDocumentUploaded(ctx, ref); err != nil {
		return domain.DocumentRef{}, fmt.Errorf("publish upload event: %w", err)
	}

	return ref, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." || strings.Trim(base, ".") == "" {
		return "document.bin"
	}
	return base
}
