package conf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/logger"
	"github.com/tphakala/wildfire-loader/internal/parquetio"
)

// ValidationError collects every problem found in one pass.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks the parts of the settings every command needs.
// Source requirements are left to ValidateSource, since the config command
// must work without a source.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if settings.Normalize.Partitions < 0 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("normalize.partitions must not be negative, got %d", settings.Normalize.Partitions))
	}
	if _, err := parquetio.ParseCodec(settings.Export.Compression); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Export.File != "" && strings.ContainsAny(settings.Export.File, `/\`) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("export.file must be a file name, got %q", settings.Export.File))
	}
	if err := validateLogging(&settings.Logging); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry.dsn is required when telemetry is enabled")
	}

	return wrapValidation(ve)
}

// ValidateSource checks the source settings a loader needs.
func ValidateSource(settings *Settings) error {
	ve := ValidationError{}
	src := settings.Source

	if src.Path == "" {
		ve.Errors = append(ve.Errors, "source.path is required")
	} else if info, err := os.Stat(src.Path); err != nil {
		ve.Errors = append(ve.Errors, fmt.Sprintf("source.path: %v", err))
	} else if info.IsDir() {
		ve.Errors = append(ve.Errors, fmt.Sprintf("source.path %q is a directory", src.Path))
	}
	if src.StartDate == "" {
		ve.Errors = append(ve.Errors, "source.startdate is required")
	}
	if src.EndDate == "" {
		ve.Errors = append(ve.Errors, "source.enddate is required")
	}
	if len(src.TruthFields) == 0 {
		ve.Errors = append(ve.Errors, "source.truthfields needs at least one column")
	}

	return wrapValidation(ve)
}

func validateLogging(cfg *logger.LoggingConfig) error {
	switch strings.ToLower(cfg.DefaultLevel) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.default_level %q is not a log level", cfg.DefaultLevel)
	}
	switch cfg.Timezone {
	case "", "UTC", "Local":
	default:
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("logging.timezone: %w", err)
		}
	}
	return nil
}

func wrapValidation(ve ValidationError) error {
	if len(ve.Errors) == 0 {
		return nil
	}
	return errors.New(ve).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Build()
}
