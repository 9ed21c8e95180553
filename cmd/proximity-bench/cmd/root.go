// Package cmd provides the proximity-bench subcommands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/mr1hm/go-disaster-proximity/internal/app"
	"github.com/mr1hm/go-disaster-proximity/internal/config"
	"github.com/mr1hm/go-disaster-proximity/internal/logging"
	"github.com/mr1hm/go-disaster-proximity/internal/repository"
	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

type rootOptions struct {
	jsonOutput bool
	logLevel   string
}

// NewRootCmd creates the root command. Database settings come from the same
// environment variables (and .env file) as the server.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "proximity-bench",
		Short: "Probe and benchmark proximity search backends",
		Long: `proximity-bench inspects the spatial capability of the configured
database and times the indexed (PostGIS) and scan (in-process haversine)
search paths side by side.

Connection settings are read from DB_DRIVER, DB_PATH and PG_* environment
variables, or a .env file in the working directory.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(opts.logLevel, "text")
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newProbeCmd(opts))
	cmd.AddCommand(newCompareCmd(opts))
	cmd.AddCommand(newBatchCmd(opts))

	return cmd
}

// openSearch loads configuration and opens the store. The caller closes it.
func openSearch(ctx context.Context) (*config.Config, repository.Store, *app.Search, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	store, err := app.OpenStore(ctx, cfg.DB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error opening %s database: %w", cfg.DB.Driver, err)
	}
	return cfg, store, app.NewSearch(cfg, store, nil), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
