// Package verify implements the verify command.
package verify

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/wildfire-loader/internal/cli"
	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/parquetio"
)

// Command checks an existing Parquet file against a fresh load of the
// query that produced it.
func Command(ctx *cli.Context) *cobra.Command {
	var (
		query        string
		datetimeCols []string
	)

	cmd := &cobra.Command{
		Use:   "verify <parquet-file>",
		Short: "Compare a Parquet export with its source query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ctx.NewLoader()
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.LoadTableFromQuery(cmd.Context(), query); err != nil {
				return err
			}
			tbl, err := d.NormalizeDatetimes(datetimeCols)
			if err != nil {
				return err
			}

			report, err := parquetio.Verify(cmd.Context(), tbl, args[0], nil)
			if err != nil {
				return err
			}
			cli.PrintVerifyReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				return errors.Newf("%s does not match the query result", args[0]).
					Component("cli").
					Category(errors.CategoryDataFormat).
					Context("problems", len(report.Problems)).
					Build()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "SQL query that produced the file")
	cmd.Flags().StringSliceVar(&datetimeCols, "datetime-cols", nil, "Columns that were normalized on export")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
