package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/app"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/proximity"
	"github.com/spf13/cobra"
)

func newCompareCmd(opts *rootOptions) *cobra.Command {
	var (
		lat, lng, radius float64
		kind             string
		tags             []string
		endpoint         string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Time one query on both backends",
		Long: `Run the same proximity query on the indexed and scan backends and
report each path's time and result count, the faster path, and whether both
returned the same ids in the same order.

With --endpoint, the query is also timed through a running server's HTTP API.`,
		Example: `  proximity-bench compare --lat 40.7128 --lng -74.0060 --radius 25000
  proximity-bench compare --lat 35.68 --lng 139.65 --kind disaster --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := models.ParseEntityKind(kind)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, store, search, err := openSearch(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			harness := search.Harness
			if endpoint != "" {
				harness = app.NewSearch(cfg, store, nil,
					app.WithEndpoint(proximity.NewHTTPEndpointTimer(endpoint, 30*time.Second))).Harness
			}

			cmp, err := harness.Compare(ctx, proximity.Query{
				Kind:         k,
				Center:       geo.NewPoint(lat, lng),
				RadiusMeters: radius,
				Tags:         tags,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, cmp)
			}
			printComparison(out, cmp)
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Center latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Center longitude")
	cmd.Flags().Float64Var(&radius, "radius", 50_000, "Radius in meters")
	cmd.Flags().StringVar(&kind, "kind", string(models.KindResource), "Entity kind (disaster or resource)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Match any of these tags")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Base URL of a running server to time as well")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")

	return cmd
}

func printComparison(out io.Writer, cmp *proximity.Comparison) {
	fmt.Fprintf(out, "Query: %s within %.0fm of %s\n\n", cmp.Kind, cmp.Radius, cmp.Center)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tTIME (ms)\tCOUNT\tNOTE")
	printTiming(w, "indexed", cmp.Indexed)
	printTiming(w, "scan", cmp.Scan)
	if cmp.Endpoint != nil {
		printTiming(w, "endpoint", *cmp.Endpoint)
	}
	w.Flush()

	fmt.Fprintf(out, "\nFastest:    %s\n", orDash(string(cmp.Fastest)))
	switch {
	case cmp.Consistent == nil:
		fmt.Fprintln(out, "Consistent: n/a")
	case *cmp.Consistent:
		fmt.Fprintln(out, "Consistent: yes")
	default:
		fmt.Fprintf(out, "Consistent: no (differ on %s)\n", strings.Join(cmp.Mismatched, ", "))
	}
}

func printTiming(w io.Writer, name string, t proximity.PathTiming) {
	switch {
	case t.Skipped:
		fmt.Fprintf(w, "%s\t-\t-\tskipped: %s\n", name, t.Reason)
	case t.Error != "":
		fmt.Fprintf(w, "%s\t%.2f\t-\terror: %s\n", name, t.TimeMs, t.Error)
	default:
		fmt.Fprintf(w, "%s\t%.2f\t%d\t\n", name, t.TimeMs, t.Count)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
