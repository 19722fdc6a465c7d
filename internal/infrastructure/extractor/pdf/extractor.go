package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(extension string) bool {
	return strings.EqualFold(extension, ".pdf")
}

// Extract joins the plain text of every page with newlines. Pages that fail to
// decode are logged and skipped.
func (e *Extractor) Extract(ctx context.Context, ref domain.DocumentRef, data []byte) (text string, err error) {
	defer func() {
		// the pdf package panics on some malformed inputs
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrNonRetriable, "extract pdf", fmt.Errorf("%s: %v", ref.Filename(), r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrNonRetriable, "extract pdf", fmt.Errorf("open %s: %w", ref.Filename(), err))
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("pdf_page_extract_failed", "document", ref.String(), "page", i, "error", err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(pageText)
	}
	return strings.TrimSpace(b.String()), nil
}
