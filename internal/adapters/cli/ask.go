package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

func newAskCmd(deps Deps) *cobra.Command {
	var (
		asJSON bool
		turns  []string
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the ingested lectures",
		Long: `Runs the retrieval-augmented answer pipeline once.
Earlier turns can be passed with --turn role:text, oldest first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			history, err := parseTurns(turns)
			if err != nil {
				return err
			}

			svc, closeFn, err := openServices(cmd, deps, false)
			if err != nil {
				return err
			}
			defer closeFn()
			if svc.Query == nil {
				return errors.New("query service not configured")
			}

			answer, err := svc.Query.Answer(cmd.Context(), question, history)
			if err != nil {
				return fmt.Errorf("answer failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, answer)
			}

			cmd.Println(answer.Text)
			if len(answer.Sources) > 0 {
				cmd.Println()
				cmd.Println("Sources:")
				for i, src := range answer.Sources {
					cmd.Printf("  [%d] %s (%.3f)\n", i+1, src.RecordID, src.Score)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the answer as JSON")
	cmd.Flags().StringArrayVar(&turns, "turn", nil, "earlier conversation turn as role:text (repeatable)")
	return cmd
}

func parseTurns(raw []string) (domain.ConversationHistory, error) {
	history := make(domain.ConversationHistory, 0, len(raw))
	for _, item := range raw {
		roleRaw, text, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("turn %q must look like role:text", item)
		}
		role, err := domain.ParseRole(roleRaw)
		if err != nil {
			return nil, err
		}
		history = append(history, domain.ConversationTurn{Role: role, Text: strings.TrimSpace(text)})
	}
	return history, nil
}
