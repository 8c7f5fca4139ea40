package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/clinic-rx/pharmacy"
)

func inventoryCmd(flags *globalFlags) *cobra.Command {
	var low int64 = -1
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List catalog stock and total stock value",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, engine, err := setup(flags)
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := cmd.Context()
			if err := ensureSchema(ctx, log, engine); err != nil {
				return err
			}

			var entries []pharmacy.CatalogEntry
			if low >= 0 {
				entries, err = engine.ListLowStock(ctx, low)
			} else {
				entries, err = engine.ListCatalog(ctx)
			}
			if err != nil {
				return err
			}
			total, err := engine.InventoryValue(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printEntries(out, entries)
			fmt.Fprintf(out, "\ntotal stock value: %s\n", total.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().Int64Var(&low, "low", -1, "only entries with quantity on hand at or below this value")
	return cmd
}

func printEntries(out io.Writer, entries []pharmacy.CatalogEntry) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tUNIT\tPRICE\tON HAND\tVALUE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Code, e.Name, e.Unit, e.Price.StringFixed(2), e.QuantityOnHand, e.Value().StringFixed(2))
	}
	tw.Flush()
}
