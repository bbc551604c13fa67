// Package config implements the config command.
package config

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/wildfire-loader/internal/cli"
	"github.com/tphakala/wildfire-loader/internal/conf"
)

const redacted = "[REDACTED]"

// Command prints the effective settings as YAML.
func Command(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Prints the settings after defaults, the config file, environment variables and flags are merged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := redact(*ctx.Settings)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func redact(s conf.Settings) conf.Settings {
	if s.Telemetry.DSN != "" {
		s.Telemetry.DSN = redacted
	}
	return s
}
