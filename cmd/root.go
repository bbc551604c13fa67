// Package cmd assembles the wildfire-loader command tree.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/wildfire-loader/cmd/columns"
	configcmd "github.com/tphakala/wildfire-loader/cmd/config"
	"github.com/tphakala/wildfire-loader/cmd/export"
	"github.com/tphakala/wildfire-loader/cmd/tables"
	"github.com/tphakala/wildfire-loader/cmd/verify"
	"github.com/tphakala/wildfire-loader/internal/cli"
	"github.com/tphakala/wildfire-loader/internal/conf"
	"github.com/tphakala/wildfire-loader/internal/errors"
)

// flagKeys maps flag names to config keys. Flags are bound only on the
// commands that define them.
var flagKeys = map[string]string{
	"debug":        "debug",
	"source":       "source.path",
	"start-date":   "source.startdate",
	"end-date":     "source.enddate",
	"truth-fields": "source.truthfields",
	"input-fields": "source.inputfields",
	"parallel":     "normalize.parallel",
	"partitions":   "normalize.partitions",
	"progress":     "normalize.progress",
	"file":         "export.file",
	"dir":          "export.dir",
	"compression":  "export.compression",
	"metrics-file": "export.metricsfile",
}

// RootCommand creates the root command and its subcommands.
func RootCommand(ctx *cli.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "wildfire-loader",
		Short:         "Load wildfire records from SQLite and export them to Parquet",
		Version:       ctx.Build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, &configFile)

	rootCmd.AddCommand(
		tables.Command(ctx),
		columns.Command(ctx),
		export.Command(ctx),
		verify.Command(ctx),
		configcmd.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		v, err := conf.New(configFile)
		if err != nil {
			return err
		}
		if err := bindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		return ctx.Initialize(v, cmd.ErrOrStderr())
	}
	rootCmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		return ctx.Close()
	}

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, configFile *string) {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(configFile, "config", "", "Config file (default: ./wildfire.yaml or ~/.config/wildfire-loader/wildfire.yaml)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("source", "", "Path to the SQLite database")
	flags.String("start-date", "", "Start of the record window")
	flags.String("end-date", "", "End of the record window")
	flags.StringSlice("truth-fields", nil, "Ground-truth column names")
	flags.StringSlice("input-fields", nil, "Model input column names (default: all)")
	flags.Bool("parallel", true, "Normalize datetime columns in parallel")
	flags.Int("partitions", 0, "Parallel partitions (default: logical CPU count)")
	flags.Bool("progress", false, "Show progress while normalizing")
}

// bindFlags binds every known flag present on the running command.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.New(err).
				Component("cli").
				Category(errors.CategoryConfiguration).
				Context("flag", name).
				Build()
		}
	}
	return nil
}
