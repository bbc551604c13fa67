// Package conf loads wildfire-loader settings from defaults, a YAML file,
// WILDFIRE_ environment variables and command-line flags, in increasing
// order of precedence.
package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/loader"
	"github.com/tphakala/wildfire-loader/internal/logger"
	"github.com/tphakala/wildfire-loader/internal/telemetry"
)

// ConfigName is the config file base name searched in the config paths.
const ConfigName = "wildfire"

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "WILDFIRE"

// Settings is the complete runtime configuration.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Source    SourceSettings       `mapstructure:"source" yaml:"source"`
	Normalize NormalizeSettings    `mapstructure:"normalize" yaml:"normalize"`
	Export    ExportSettings       `mapstructure:"export" yaml:"export"`
	Logging   logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Telemetry telemetry.Settings   `mapstructure:"telemetry" yaml:"telemetry"`
}

// SourceSettings describes the database and the record window.
type SourceSettings struct {
	Path        string   `mapstructure:"path" yaml:"path"`
	StartDate   string   `mapstructure:"startdate" yaml:"startdate"`
	EndDate     string   `mapstructure:"enddate" yaml:"enddate"`
	TruthFields []string `mapstructure:"truthfields" yaml:"truthfields"`
	InputFields []string `mapstructure:"inputfields" yaml:"inputfields,omitempty"`
}

// NormalizeSettings controls datetime normalization.
type NormalizeSettings struct {
	Parallel   bool `mapstructure:"parallel" yaml:"parallel"`
	Partitions int  `mapstructure:"partitions" yaml:"partitions"`
	Progress   bool `mapstructure:"progress" yaml:"progress"`
}

// ExportSettings controls Parquet export.
type ExportSettings struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	File        string `mapstructure:"file" yaml:"file"`
	Compression string `mapstructure:"compression" yaml:"compression"`
	MetricsFile string `mapstructure:"metricsfile" yaml:"metricsfile,omitempty"`
}

// New returns a viper instance with defaults, config search paths and
// environment bindings in place. configFile, when set, replaces the search.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaultConfig(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reads the config file if one is found and decodes the merged
// settings. A missing file in the search paths is not an error; an
// explicitly named file that cannot be read is.
func Load(v *viper.Viper) (*Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_file", v.ConfigFileUsed()).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}
	settings.Source.TruthFields = splitList(settings.Source.TruthFields)
	settings.Source.InputFields = splitList(settings.Source.InputFields)

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	return settings, nil
}

// DefaultConfigPaths returns the directories searched for wildfire.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "wildfire-loader"))
	}
	return paths
}

// LoaderConfig converts the settings into a DataLoader configuration.
func (s *Settings) LoaderConfig() loader.Config {
	cfg := loader.DefaultConfig()
	cfg.SourcePath = s.Source.Path
	cfg.StartDate = s.Source.StartDate
	cfg.EndDate = s.Source.EndDate
	cfg.TruthFields = s.Source.TruthFields
	cfg.InputFields = s.Source.InputFields
	cfg.Parallel = s.Normalize.Parallel
	cfg.Partitions = s.Normalize.Partitions
	cfg.Progress = s.Normalize.Progress
	cfg.Compression = s.Export.Compression
	return cfg
}

// splitList accepts both YAML lists and comma-separated strings, which is
// what environment variables and some flag bindings produce.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for part := range strings.SplitSeq(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
