// Package tables implements the tables command.
package tables

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/wildfire-loader/internal/cli"
)

// Command lists the tables in the source database.
func Command(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables in the source database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := ctx.NewLoader()
			if err != nil {
				return err
			}
			defer d.Close()

			names, err := d.ListTables(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
