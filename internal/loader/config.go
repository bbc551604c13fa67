package loader

import (
	"slices"
	"strings"

	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/parquetio"
)

// DefaultExportFileName is used when ExportParquet gets no file name.
const DefaultExportFileName = "export.parquet.gzip"

// Config is fixed once a DataLoader is constructed. Start from
// DefaultConfig: the zero value leaves Parallel off, while the default is
// parallel normalization.
type Config struct {
	// SourcePath is the SQLite database file.
	SourcePath string
	// StartDate and EndDate bound the record window. They are carried for
	// the caller's query construction and never parsed or applied here.
	StartDate string
	EndDate   string
	// TruthFields names the ground-truth target columns.
	TruthFields []string
	// InputFields names the model input columns; nil means all.
	InputFields []string

	// Parallel selects goroutine fan-out for datetime normalization. It is
	// true in DefaultConfig.
	Parallel bool
	// Partitions overrides the detected logical core count when positive.
	Partitions int
	// Progress draws a spinner while normalizing.
	Progress bool
	// Compression is the Parquet codec name, gzip when empty.
	Compression string
}

// DefaultConfig returns a Config with the optional fields at their defaults.
func DefaultConfig() Config {
	return Config{
		Parallel:    true,
		Compression: parquetio.DefaultCodecName,
	}
}

// Validate checks that every required field is set.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.SourcePath) == "" {
		missing = append(missing, "source path")
	}
	if strings.TrimSpace(c.StartDate) == "" {
		missing = append(missing, "start date")
	}
	if strings.TrimSpace(c.EndDate) == "" {
		missing = append(missing, "end date")
	}
	if len(c.TruthFields) == 0 {
		missing = append(missing, "truth fields")
	}
	if len(missing) > 0 {
		return errors.Newf("invalid loader config: missing %s", strings.Join(missing, ", ")).
			Component("loader").
			Category(errors.CategoryValidation).
			Context("missing", missing).
			Build()
	}

	if c.Partitions < 0 {
		return errors.Newf("invalid loader config: partitions must not be negative, got %d", c.Partitions).
			Component("loader").
			Category(errors.CategoryValidation).
			Build()
	}
	if _, err := parquetio.ParseCodec(c.Compression); err != nil {
		return err
	}
	return nil
}

func (c *Config) clone() Config {
	out := *c
	out.TruthFields = slices.Clone(c.TruthFields)
	out.InputFields = slices.Clone(c.InputFields)
	return out
}
