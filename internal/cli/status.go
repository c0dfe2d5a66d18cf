package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/popeye/internal/journal"
	"github.com/randalmurphal/popeye/internal/pipeline"
)

func newStatusCmd() *cobra.Command {
	var historyLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the pipeline state for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := pipeline.LoadState(flagProjectDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "phase:               %s\n", state.PipelinePhase)
			fmt.Fprintf(out, "artifacts:           %d\n", len(state.Artifacts))
			fmt.Fprintf(out, "recovery iterations: %d of %d\n", state.RecoveryCount, state.MaxRecoveryIterations)
			if state.FailedPhase != "" {
				fmt.Fprintf(out, "failed phase:        %s\n", state.FailedPhase)
			}

			if pending := pendingChanges(state); len(pending) > 0 {
				fmt.Fprintln(out, "\npending change requests:")
				for _, cr := range pending {
					fmt.Fprintf(out, "  %s  %-12s -> %s\n", cr.CRID, cr.ChangeType, cr.TargetPhase)
				}
			}

			if gr, ok := state.GateResults[state.PipelinePhase]; ok && len(gr.Blockers) > 0 {
				fmt.Fprintln(out, "\nblockers:")
				for _, b := range gr.Blockers {
					fmt.Fprintln(out, "  - "+b)
				}
			}

			if historyLimit > 0 {
				return printHistory(cmd, historyLimit)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&historyLimit, "history", 0, "show the N most recent phase transitions")
	return cmd
}

func pendingChanges(state *pipeline.State) []pipeline.PendingChange {
	var out []pipeline.PendingChange
	for _, cr := range state.PendingChangeRequests {
		if cr.Status == pipeline.CRProposed {
			out = append(out, cr)
		}
	}
	return out
}

func printHistory(cmd *cobra.Command, limit int) error {
	jrnl, err := journal.Open(flagProjectDir)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	history, err := jrnl.History(limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nhistory (newest first):")
	for _, t := range history {
		fmt.Fprintf(out, "  %s  %s -> %s (recovery %d)\n", t.CreatedAt, t.From, t.To, t.RecoveryCount)
	}
	return nil
}
