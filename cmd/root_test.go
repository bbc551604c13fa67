package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/wildfire-loader/internal/buildinfo"
	"github.com/tphakala/wildfire-loader/internal/cli"
	"github.com/tphakala/wildfire-loader/internal/conf"
	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/parquetio"
)

func createFireDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fires.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	stmts := []string{
		`CREATE TABLE observations (id INTEGER PRIMARY KEY, recorded_at TEXT, temperature REAL)`,
		`INSERT INTO observations VALUES
			(1, '2021-07-14 10:00:00', 31.5),
			(2, '2021-07-14 11:00:00', 33.0),
			(3, '2021-07-14 12:00:00', NULL)`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return path
}

// run executes the command tree with a config file in an isolated working
// directory and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	app := cli.NewContext(buildinfo.NewContext("test", ""))
	root := RootCommand(app)

	var out, logs bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	_ = app.Close()
	return out.String(), err
}

func sourceArgs(db string) []string {
	return []string{
		"--source", db,
		"--start-date", "2021-07-01",
		"--end-date", "2021-09-30",
		"--truth-fields", "temperature",
	}
}

func TestTablesCommand(t *testing.T) {
	db := createFireDB(t)

	out, err := run(t, append([]string{"tables"}, sourceArgs(db)...)...)
	require.NoError(t, err)
	assert.Equal(t, "observations\n", out)
}

func TestColumnsCommand(t *testing.T) {
	db := createFireDB(t)

	out, err := run(t, append([]string{"columns", "observations", "--limit", "1"}, sourceArgs(db)...)...)
	require.NoError(t, err)
	assert.Equal(t, "id\nrecorded_at\ntemperature\n", out)

	_, err = run(t, append([]string{"columns", "observations", "--limit", "0"}, sourceArgs(db)...)...)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestCommandsRequireSourceSettings(t *testing.T) {
	_, err := run(t, "tables")
	require.Error(t, err)

	var ve conf.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "source.path is required")
}

func TestExportAndVerifyCommands(t *testing.T) {
	db := createFireDB(t)
	outDir := t.TempDir()
	metricsFile := filepath.Join(t.TempDir(), "loader.prom")

	args := append([]string{
		"export",
		"--query", "SELECT * FROM observations",
		"--datetime-cols", "recorded_at",
		"--dir", outDir,
		"--file", "obs.parquet",
		"--compression", "snappy",
		"--verify",
		"--metrics-file", metricsFile,
		"--parallel=false",
	}, sourceArgs(db)...)

	out, err := run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "=== Export Summary ===")
	assert.Contains(t, out, "Rows:        3")
	assert.Contains(t, out, "recorded_at (serial")
	assert.Contains(t, out, "Codec:       Snappy")
	assert.Contains(t, out, "Verification passed")

	path := filepath.Join(outDir, "obs.parquet")
	info, err := parquetio.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Rows)
	assert.Equal(t, "SNAPPY", info.Codec)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "wildfire_loader_rows_loaded_total 3")

	verifyArgs := append([]string{
		"verify", path,
		"--query", "SELECT * FROM observations",
		"--datetime-cols", "recorded_at",
	}, sourceArgs(db)...)
	out, err = run(t, verifyArgs...)
	require.NoError(t, err)
	assert.Contains(t, out, "Verification passed")

	mismatch := append([]string{
		"verify", path,
		"--query", "SELECT * FROM observations WHERE id < 3",
		"--datetime-cols", "recorded_at",
	}, sourceArgs(db)...)
	out, err = run(t, mismatch...)
	require.Error(t, err)
	assert.True(t, errors.IsDataFormat(err))
	assert.Contains(t, out, "row count: expected 2, found 3")
}

func TestExportDefaultsToDatabaseDirectory(t *testing.T) {
	db := createFireDB(t)

	_, err := run(t, append([]string{"export", "--query", "SELECT id FROM observations"}, sourceArgs(db)...)...)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(filepath.Dir(db), "export.parquet.gzip"))
	assert.NoError(t, err)
}

func TestExportRequiresQuery(t *testing.T) {
	db := createFireDB(t)

	_, err := run(t, append([]string{"export"}, sourceArgs(db)...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestConfigCommandPrintsMergedSettings(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "wildfire.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
source:
  path: /data/fires.db
telemetry:
  dsn: https://key@example.invalid/1
export:
  compression: zstd
`), 0o600))

	out, err := run(t, "config", "--config", cfgPath, "--partitions", "3")
	require.NoError(t, err)

	var got conf.Settings
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "/data/fires.db", got.Source.Path)
	assert.Equal(t, 3, got.Normalize.Partitions)
	assert.Equal(t, "zstd", got.Export.Compression)
	assert.Equal(t, "[REDACTED]", got.Telemetry.DSN)
	assert.False(t, strings.Contains(out, "example.invalid"))
}
