// Package columns implements the columns command.
package columns

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/wildfire-loader/internal/cli"
	"github.com/tphakala/wildfire-loader/internal/datastore"
)

// Command lists the columns of one table.
func Command(ctx *cli.Context) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "columns <table>",
		Short: "List the columns of a table",
		Long:  "Lists the column names returned when sampling up to --limit rows of the table.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ctx.NewLoader()
			if err != nil {
				return err
			}
			defer d.Close()

			names, err := d.ListColumns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", datastore.DefaultColumnSampleLimit, "Number of rows to sample")
	return cmd
}
