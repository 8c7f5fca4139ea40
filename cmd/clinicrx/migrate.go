package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/clinic-rx/store/sqlite"
)

func migrateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the data file to the current schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, engine, err := setup(flags)
			if err != nil {
				return err
			}
			defer engine.Close()

			report, err := engine.EnsureSchema(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			if err != nil {
				return err
			}
			log.Info().Int("applied", report.Count(sqlite.OutcomeApplied)).Msg("schema up to date")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print tables and columns of the data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, engine, err := setup(flags)
			if err != nil {
				return err
			}
			defer engine.Close()

			state, err := engine.Store().Schema().Inspect(cmd.Context())
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "backup <file>",
		Short: "Summarize a retired-table backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := sqlite.ReadBackup(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %s exported %s: %d rows, columns %v\n",
				b.Table, b.ExportedAt.Format("2006-01-02 15:04:05Z07:00"), len(b.Rows), b.Columns)
			return nil
		},
	})
	return cmd
}

func printReport(out io.Writer, report sqlite.Report) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tTABLE\tCOLUMN\tOUTCOME\tROWS\tNOTE")
	for _, s := range report.Steps {
		note := s.Backup
		if s.Err != nil {
			note = s.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", s.Kind, s.Table, s.Column, s.Outcome, s.Rows, note)
	}
	tw.Flush()
	if report.Aborted != nil {
		fmt.Fprintf(out, "aborted: %v\n", report.Aborted)
	}
}

func printState(out io.Writer, state sqlite.SchemaState) {
	names := make([]string, 0, len(state.Tables))
	for name := range state.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\n", name)
		for _, c := range state.Tables[name] {
			flags := ""
			if c.PK > 0 {
				flags += " pk"
			}
			if c.NotNull {
				flags += " not null"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Name, c.Type, flags)
		}
	}
	tw.Flush()
}
