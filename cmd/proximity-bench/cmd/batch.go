package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/proximity"
	"github.com/spf13/cobra"
)

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var (
		radius float64
		kind   string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Compare backends across a fixed set of world cities",
		Long: `Run compare at each built-in benchmark location and aggregate the
result counts, timings and consistency. Locations span every inhabited
continent and both sides of the antimeridian.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := models.ParseEntityKind(kind)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			_, store, search, err := openSearch(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := search.Harness.CompareBatch(ctx, k, radius)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, report)
			}
			printBatch(out, report)
			return nil
		},
	}

	cmd.Flags().Float64Var(&radius, "radius", 50_000, "Radius in meters")
	cmd.Flags().StringVar(&kind, "kind", string(models.KindResource), "Entity kind (disaster or resource)")

	return cmd
}

func printBatch(out io.Writer, r *proximity.BatchReport) {
	fmt.Fprintf(out, "Batch: %s within %.0fm of %d locations\n\n", r.Kind, r.Radius, len(r.Locations))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOCATION\tINDEXED\tSCAN\tINDEXED (ms)\tSCAN (ms)\tFASTEST\tNOTE")
	for _, loc := range r.Locations {
		note := loc.Error
		if note == "" && loc.Consistent != nil && !*loc.Consistent {
			note = "inconsistent"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f\t%s\t%s\n",
			loc.Location, loc.IndexedCount, loc.ScanCount, loc.IndexedMs, loc.ScanMs, orDash(string(loc.Fastest)), note)
	}
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t%.2f\t%.2f\t\t\n", r.TotalIndexed, r.TotalScan, r.IndexedMs, r.ScanMs)
	w.Flush()

	if r.IndexedSkipped {
		fmt.Fprintln(out, "\nIndexed backend unavailable; only the scan path was timed.")
	}
	if len(r.Inconsistent) > 0 {
		fmt.Fprintf(out, "\nInconsistent at: %s\n", strings.Join(r.Inconsistent, ", "))
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(out, "Failed at: %s\n", strings.Join(r.Failed, ", "))
	}
}
