package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

// Extractor flattens workbooks into text: one block per sheet, one line per row,
// cells separated by tabs.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(extension string) bool {
	return strings.EqualFold(extension, ".xlsx")
}

func (e *Extractor) Extract(ctx context.Context, ref domain.DocumentRef, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.WrapError(domain.ErrNonRetriable, "extract xlsx", fmt.Errorf("open %s: %w", ref.Filename(), err))
	}
	defer f.Close()

	var blocks []string
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", domain.WrapError(domain.ErrNonRetriable, "extract xlsx", fmt.Errorf("read sheet %s: %w", sheet, err))
		}

		lines := make([]string, 0, len(rows)+1)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		blocks = append(blocks, "Sheet: "+sheet+"\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n"), nil
}
