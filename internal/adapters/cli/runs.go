package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newRunsCmd(deps Deps) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "runs [document-id]",
		Short: "Show tracked ingestion runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openServices(cmd, deps, false)
			if err != nil {
				return err
			}
			defer closeFn()
			if svc.Runs == nil {
				return errors.New("ingestion tracking is disabled, set POSTGRES_DSN")
			}

			if len(args) == 1 {
				run, err := svc.Runs.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, run)
			}

			runs, err := svc.Runs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, runs)
			}
			if len(runs) == 0 {
				cmd.Println("No ingestion runs recorded.")
				return nil
			}
			for _, run := range runs {
				line := run.UpdatedAt.Format("2006-01-02 15:04:05") + "  " + string(run.State) + "  " + run.DocumentID
				if run.FailedStep != "" {
					line += "  (failed at " + string(run.FailedStep) + ": " + run.Error + ")"
				}
				cmd.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output runs as JSON")
	return cmd
}
