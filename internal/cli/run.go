package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/popeye/internal/config"
	"github.com/randalmurphal/popeye/internal/events"
	"github.com/randalmurphal/popeye/internal/journal"
	"github.com/randalmurphal/popeye/internal/orchestrator"
	"github.com/randalmurphal/popeye/internal/provider"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagProjectDir)
			if err != nil {
				return err
			}
			if len(cfg.Reviewers) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: no reviewers configured; consensus phases cannot pass")
			}

			jrnl, err := journal.Open(flagProjectDir)
			if err != nil {
				return err
			}
			defer jrnl.Close()

			publisher := events.NewMemoryPublisher()
			defer publisher.Close()
			progress := publisher.Subscribe(events.AllTypes)
			go func() {
				for ev := range progress {
					line := fmt.Sprintf("%-16s %s", ev.Type, ev.Phase)
					if ev.Message != "" {
						line += "  " + ev.Message
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
			}()

			orch := orchestrator.New(flagProjectDir, cfg, provider.NewRegistry(),
				orchestrator.WithLogger(slog.Default()),
				orchestrator.WithPublisher(publisher),
				orchestrator.WithJournal(jrnl))

			res, err := orch.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nfinal phase: %s\nartifacts: %d\nrecovery iterations: %d\n",
				res.FinalPhase, len(res.Artifacts), res.RecoveryIterations)
			if !res.Success {
				return fmt.Errorf("pipeline did not complete: %v", res.Err)
			}
			return nil
		},
	}
}
