package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docweave/docweave/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		offline bool
		verbose bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that endpoints, storage, and system limits are ready",
		Long: `Check that endpoints, storage, and system limits are ready.

Probes the chat and embedding endpoints, opens the checkpoint store,
and verifies disk space and file descriptor limits. A passing run is
recorded so generate skips the probe next time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			checker := preflight.New(cfg,
				preflight.WithOffline(offline),
				preflight.WithVerbose(verbose),
			)
			results := checker.RunAll(cmd.Context())

			if jsonOut {
				report := struct {
					Status string                  `json:"status"`
					Checks []preflight.CheckResult `json:"checks"`
				}{
					Status: checker.SummaryStatus(results),
					Checks: results,
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("preflight checks failed")
			}
			if err := preflight.MarkPassed(cfg.ResolvedDataDir()); err != nil && verbose {
				fmt.Fprintf(os.Stderr, "could not record passing check: %v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip endpoint probes")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output results as JSON")

	return cmd
}
