package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/wildfire-loader/internal/errors"
)

func validConfig(source string) Config {
	cfg := DefaultConfig()
	cfg.SourcePath = source
	cfg.StartDate = "2021-07-01"
	cfg.EndDate = "2021-09-30"
	cfg.TruthFields = []string{"burned"}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.True(t, cfg.Parallel)
	assert.Equal(t, "gzip", cfg.Compression)
	assert.Nil(t, cfg.InputFields)
	assert.Zero(t, cfg.Partitions)

	var zero Config
	assert.False(t, zero.Parallel, "the zero value is serial; DefaultConfig turns parallel on")
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"input fields optional", func(c *Config) { c.InputFields = []string{"wind", "humidity"} }, ""},
		{"missing source", func(c *Config) { c.SourcePath = "  " }, "source path"},
		{"missing start", func(c *Config) { c.StartDate = "" }, "start date"},
		{"missing end", func(c *Config) { c.EndDate = "" }, "end date"},
		{"missing truth", func(c *Config) { c.TruthFields = nil }, "truth fields"},
		{"negative partitions", func(c *Config) { c.Partitions = -2 }, "partitions"},
		{"unknown codec", func(c *Config) { c.Compression = "lz4raw" }, "lz4raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig("/data/fires.db")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidateListsAllMissingFields(t *testing.T) {
	t.Parallel()

	var cfg Config
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, "invalid loader config: missing source path, start date, end date, truth fields", err.Error())
}

func TestConfigCloneIsDeep(t *testing.T) {
	t.Parallel()

	cfg := validConfig("/data/fires.db")
	cfg.InputFields = []string{"wind"}
	cp := cfg.clone()
	cp.TruthFields[0] = "changed"
	cp.InputFields[0] = "changed"

	assert.Equal(t, "burned", cfg.TruthFields[0])
	assert.Equal(t, "wind", cfg.InputFields[0])
}
