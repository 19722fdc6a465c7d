package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
)

// Registry dispatches to the first extractor supporting a document's extension.
type Registry struct {
	extractors []ports.TextExtractor
	allowed    map[string]struct{}
}

func NewRegistry(extractors ...ports.TextExtractor) *Registry {
	return &Registry{extractors: extractors}
}

// WithExtensions limits the registry to the listed extensions. An empty list keeps every
// extension the extractors support.
func (r *Registry) WithExtensions(extensions ...string) *Registry {
	if len(extensions) == 0 {
		r.allowed = nil
		return r
	}
	r.allowed = make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.allowed[ext] = struct{}{}
	}
	return r
}

func (r *Registry) Supports(extension string) bool {
	return r.find(extension) != nil
}

func (r *Registry) Extract(ctx context.Context, ref domain.DocumentRef, data []byte) (string, error) {
	e := r.find(ref.Extension())
	if e == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("no extractor for %q", ref.Extension()))
	}
	return e.Extract(ctx, ref, data)
}

func (r *Registry) find(extension string) ports.TextExtractor {
	if r.allowed != nil {
		if _, ok := r.allowed[strings.ToLower(extension)]; !ok {
			return nil
		}
	}
	for _, e := range r.extractors {
		if e.Supports(extension) {
			return e
		}
	}
	return nil
}
