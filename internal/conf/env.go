package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/parquetio"
)

// envBinding ties a config key to its environment variable.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "WILDFIRE_DEBUG", validateEnvBool},

		{"source.path", "WILDFIRE_SOURCE_PATH", nil},
		{"source.startdate", "WILDFIRE_START_DATE", nil},
		{"source.enddate", "WILDFIRE_END_DATE", nil},
		{"source.truthfields", "WILDFIRE_TRUTH_FIELDS", nil},
		{"source.inputfields", "WILDFIRE_INPUT_FIELDS", nil},

		{"normalize.parallel", "WILDFIRE_PARALLEL", validateEnvBool},
		{"normalize.partitions", "WILDFIRE_PARTITIONS", validateEnvPartitions},
		{"normalize.progress", "WILDFIRE_PROGRESS", validateEnvBool},

		{"export.dir", "WILDFIRE_EXPORT_DIR", nil},
		{"export.file", "WILDFIRE_EXPORT_FILE", nil},
		{"export.compression", "WILDFIRE_COMPRESSION", validateEnvCompression},

		{"telemetry.enabled", "WILDFIRE_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "WILDFIRE_TELEMETRY_DSN", nil},
	}
}

// bindEnvVars binds the short variable names and checks set values early,
// so a bad override fails at startup instead of deep inside a command.
func bindEnvVars(v *viper.Viper) error {
	var problems []string
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(problems) > 0 {
		return errors.Newf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - ")).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvPartitions(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("not an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func validateEnvCompression(value string) error {
	_, err := parquetio.ParseCodec(value)
	return err
}
