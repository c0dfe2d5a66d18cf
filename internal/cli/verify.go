package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/popeye/internal/artifact"
	"github.com/randalmurphal/popeye/internal/constitution"
	"github.com/randalmurphal/popeye/internal/pipeline"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify artifact integrity and constitution drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			mgr := artifact.NewManager(flagProjectDir)

			entries, err := mgr.ListArtifacts("")
			if err != nil {
				return err
			}

			bad := 0
			for _, e := range entries {
				if !mgr.VerifyArtifact(e) {
					bad++
					fmt.Fprintf(out, "FAIL  %s  %s (%s)\n", artifact.ShortID(e.ID), e.Path, e.Type)
				}
			}
			fmt.Fprintf(out, "artifacts: %d verified, %d failed\n", len(entries)-bad, bad)

			if state, err := pipeline.LoadState(flagProjectDir); err == nil {
				status := constitution.Verify(state, flagProjectDir)
				if status.Valid {
					fmt.Fprintln(out, "constitution: ok")
				} else {
					fmt.Fprintf(out, "constitution: %s\n", status.Reason)
					bad++
				}
			}

			if bad > 0 {
				return fmt.Errorf("%d integrity failures", bad)
			}
			return nil
		},
	}
}
