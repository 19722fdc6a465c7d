package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

func newIngestCmd(deps Deps) *cobra.Command {
	var (
		bucket string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [object-key...]",
		Short: "Ingest stored documents synchronously",
		Long: `Runs the ingestion pipeline in this process for each object key, bypassing the
upload queue. Keys are relative to the document bucket.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openServices(cmd, deps, false)
			if err != nil {
				return err
			}
			defer closeFn()
			if svc.Ingest == nil {
				return errors.New("ingestion service not configured")
			}
			if bucket == "" {
				bucket = svc.DefaultBucket
			}

			var failed int
			for _, key := range args {
				report, err := svc.Ingest.Ingest(cmd.Context(), domain.DocumentRef{Bucket: bucket, Key: key})
				if err != nil {
					failed++
					cmd.PrintErrf("%s: %v\n", key, err)
				}
				if report == nil {
					continue
				}
				if asJSON {
					if err := printJSON(cmd, report); err != nil {
						return err
					}
					continue
				}
				cmd.Printf("%s\t%s\tchunks=%d upserted=%d pruned=%d attempts=%d\n",
					report.DocumentID, report.State, report.Chunks, report.Upserted, report.Pruned, report.Attempts)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d document(s) failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "document bucket (defaults to DOCUMENT_BUCKET)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output reports as JSON")
	return cmd
}

func newUploadCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "upload [file]",
		Short: "Store a local file and queue it for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			svc, closeFn, err := openServices(cmd, deps, true)
			if err != nil {
				return err
			}
			defer closeFn()
			if svc.Upload == nil {
				return errors.New("upload service not configured")
			}

			ref, err := svc.Upload.Upload(cmd.Context(), f.Name(), "", f)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			cmd.Printf("queued %s\n", ref.DocumentID())
			return nil
		},
	}
}
