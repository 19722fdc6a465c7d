package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Services are the use cases a command may call. Fields a deployment does not enable stay nil.
type Services struct {
	Query         ports.QueryService
	Ingest        ports.DocumentIngestor
	Upload        ports.DocumentUploader
	Runs          ports.IngestionReader
	DefaultBucket string
}

type Deps struct {
	// Open wires the application. withQueue is set for commands that publish upload events.
	Open func(ctx context.Context, withQueue bool) (*Services, func(), error)
	// TextPipeline returns the offline extraction and chunking stages.
	TextPipeline func() (ports.TextExtractor, ports.Chunker, error)
}

func NewRootCmd(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "lecturectl",
		Short:         "Operate the lecture assistant from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAskCmd(deps),
		newIngestCmd(deps),
		newUploadCmd(deps),
		newRunsCmd(deps),
		newChunkCmd(deps),
		newVersionCmd(),
	)
	return root
}

func openServices(cmd *cobra.Command, deps Deps, withQueue bool) (*Services, func(), error) {
	if deps.Open == nil {
		return nil, nil, errors.New("application wiring is not configured")
	}
	svc, closeFn, err := deps.Open(cmd.Context(), withQueue)
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return svc, closeFn, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("lecturectl " + Version)
		},
	}
}
