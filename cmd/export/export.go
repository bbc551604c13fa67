// Package export implements the export command: load a query, normalize its
// datetime columns and write the result as Parquet.
package export

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/wildfire-loader/internal/cli"
	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/logger"
	"github.com/tphakala/wildfire-loader/internal/parquetio"
)

// Command creates the export command.
func Command(ctx *cli.Context) *cobra.Command {
	var (
		query        string
		datetimeCols []string
		verifyOutput bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a query result to a Parquet file",
		Long: `Runs --query against the source database, normalizes the --datetime-cols
columns to UTC timestamps and writes the result as a Parquet file.

The file is written to --dir (default: the directory holding the database)
as --file (default: export.parquet.gzip).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()

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

			settings := ctx.Settings
			path, err := d.ExportParquet(settings.Export.File, settings.Export.Dir)
			if err != nil {
				return err
			}
			info, err := parquetio.Inspect(path)
			if err != nil {
				return err
			}

			cli.PrintExportSummary(cmd.OutOrStdout(), &cli.ExportSummary{
				Path:       path,
				Rows:       tbl.NumRows(),
				Columns:    tbl.ColumnNames(),
				Normalized: datetimeCols,
				Codec:      info.Codec,
				RowGroups:  info.RowGroups,
				SizeBytes:  fileSize(path),
				Parallel:   settings.Normalize.Parallel,
				Partitions: partitions(settings.Normalize.Partitions),
				Duration:   time.Since(start),
			})

			if !verifyOutput {
				return nil
			}
			report, err := parquetio.Verify(cmd.Context(), tbl, path, nil)
			if err != nil {
				return err
			}
			cli.PrintVerifyReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				ctx.Logger.Error("export verification failed",
					logger.String("path", path),
					logger.Strings("problems", report.Problems))
				return errors.Newf("verification of %s failed", path).
					Component("cli").
					Category(errors.CategoryDataFormat).
					Context("problems", len(report.Problems)).
					Build()
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&query, "query", "q", "", "SQL query to run")
	flags.StringSliceVar(&datetimeCols, "datetime-cols", nil, "Columns to normalize to UTC timestamps")
	flags.String("file", "", "Output file name (default: export.parquet.gzip)")
	flags.String("dir", "", "Output directory (default: the database directory)")
	flags.String("compression", "", "Parquet codec: gzip, snappy, zstd, brotli or none")
	flags.BoolVar(&verifyOutput, "verify", false, "Read the file back and compare it with the loaded table")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
