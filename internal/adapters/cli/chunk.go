package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

func newChunkCmd(deps Deps) *cobra.Command {
	var (
		asJSON  bool
		preview int
	)
	cmd := &cobra.Command{
		Use:   "chunk [file]",
		Short: "Preview how a local document is extracted and chunked",
		Long: `Extracts text from a local file and splits it with the configured chunk size and
overlap. No external service is called.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.TextPipeline == nil {
				return errors.New("text pipeline not configured")
			}
			extractor, chunker, err := deps.TextPipeline()
			if err != nil {
				return err
			}

			path := args[0]
			ref := domain.DocumentRef{Key: filepath.ToSlash(filepath.Base(path))}
			if !extractor.Supports(ref.Extension()) {
				return fmt.Errorf("extension %q is not ingested", ref.Extension())
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			text, err := extractor.Extract(cmd.Context(), ref, data)
			if err != nil {
				return err
			}

			chunks := chunker.Chunk(ref.DocumentID(), text)
			if asJSON {
				return printJSON(cmd, chunks)
			}
			cmd.Printf("%s: %d characters, %d chunk(s)\n", ref.Key, len([]rune(text)), len(chunks))
			for _, c := range chunks {
				cmd.Printf("  %s offset=%d chars=%d  %s\n", c.RecordID(), c.CharOffset, len([]rune(c.Text)), snippet(c.Text, preview))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output chunks as JSON")
	cmd.Flags().IntVar(&preview, "preview", 60, "characters of each chunk to show")
	return cmd
}

func snippet(text string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(strings.Map(func(ch rune) rune {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			return ' '
		}
		return ch
	}, text))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
