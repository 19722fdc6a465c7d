package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

type Extractor struct {
	extensions map[string]struct{}
}

func NewExtractor(extensions ...string) *Extractor {
	if len(extensions) == 0 {
		extensions = []string{".txt", ".md"}
	}
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return &Extractor{extensions: set}
}

func (e *Extractor) Supports(extension string) bool {
	_, ok := e.extensions[strings.ToLower(extension)]
	return ok
}

func (e *Extractor) Extract(_ context.Context, ref domain.DocumentRef, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", domain.WrapError(domain.ErrNonRetriable, "extract text", fmt.Errorf("%s is not valid utf-8", ref.Filename()))
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text), nil
}
