/*
main.go - Application entry point

PURPOSE:
  The clinicrx binary. Loads configuration, builds the logger and the
  engine, and dispatches to a subcommand.

COMMANDS:
  serve       Ensure the schema, then serve the HTTP API until SIGINT/SIGTERM
  migrate     Run the schema plan and print the step report
  migrate status    Print the current tables and columns
  migrate backup    Print a summary of a retired-table backup file
  inventory   List the catalog, low stock and total stock value

CONFIGURATION:
  --config names an optional YAML/TOML/JSON file. Every key can be
  overridden by CLINICRX_<KEY> (e.g. CLINICRX_DB_PATH, CLINICRX_STOCK_POLICY).
  --db overrides db_path.

EXAMPLES:
  clinicrx migrate --db ./data/clinic.db
  CLINICRX_STOCK_POLICY=allow-negative clinicrx serve
  clinicrx inventory --low 20

SEE ALSO:
  - config/config.go: keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/clinic-rx/clinic"
	"github.com/warp/clinic-rx/config"
	"github.com/warp/clinic-rx/logger"
)

type globalFlags struct {
	configPath string
	dbPath     string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "clinicrx",
		Short:         "Prescription fulfillment and inventory engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides db_path)")

	root.AddCommand(serveCmd(flags))
	root.AddCommand(migrateCmd(flags))
	root.AddCommand(inventoryCmd(flags))
	return root
}

// setup loads config, builds the logger and opens the engine.
func setup(flags *globalFlags) (*config.Config, zerolog.Logger, *clinic.Engine, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	engine, err := clinic.Open(*cfg, log)
	if err != nil {
		return nil, log, nil, err
	}
	return cfg, log, engine, nil
}

// ensureSchema runs the schema plan, logging every step that did not
// succeed. It fails only when a required step failed.
func ensureSchema(ctx context.Context, log zerolog.Logger, engine *clinic.Engine) error {
	report, err := engine.EnsureSchema(ctx)
	for _, p := range report.Problems() {
		log.Warn().Err(p.Err).Str("kind", string(p.Kind)).Str("table", p.Table).
			Str("column", p.Column).Bool("required", p.Required).Msg("schema step did not apply")
	}
	return err
}
