package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report whether the indexed backend is usable",
		Long: `Run the two-stage spatial capability probe: an extension registration
check followed by a real call to the spatial functions. A registered but
broken installation is reported with remediation steps.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, search, err := openSearch(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			d := search.Probe.Diagnostics(ctx)
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, d)
			}

			fmt.Fprintf(out, "State:     %s\n", d.State)
			fmt.Fprintf(out, "Available: %t\n", d.Available)
			fmt.Fprintf(out, "Reason:    %s\n", d.Reason)
			if d.Remediation != "" {
				fmt.Fprintf(out, "\nRemediation:\n  %s\n", d.Remediation)
			}
			return nil
		},
	}
}
