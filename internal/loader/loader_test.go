package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/observability/metrics"
	"github.com/tphakala/wildfire-loader/internal/parquetio"
	"github.com/tphakala/wildfire-loader/internal/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// createFireDB writes the observations fixture plus a table with one
// unparseable date.
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
		`CREATE TABLE ignitions (fire TEXT, discovered TEXT, contained TEXT)`,
		`INSERT INTO ignitions VALUES
			('Dixie', '2021-07-13', '2021-10-25'),
			('Caldor', '2021-08-14', 'unknown'),
			('Creek', '2020-09-04', '2020-12-24')`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return path
}

func newTestLoader(t *testing.T, source string, mutate func(*Config), opts ...Option) *DataLoader {
	t.Helper()

	cfg := validConfig(source)
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				if c := m.GetCounter(); c != nil {
					return c.GetValue()
				}
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestNewDoesNotTouchDatabase(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "later.db")
	d := newTestLoader(t, missing, nil)
	assert.False(t, d.Loaded())
	assert.Zero(t, d.OpenConnections())

	_, err := os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestOperationsBeforeLoadArePreconditionErrors(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)

	_, err := d.Table()
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err))
	assert.ErrorIs(t, err, ErrNoTableLoaded)

	_, err = d.NormalizeDatetimes([]string{"recorded_at"})
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err))

	_, err = d.NormalizeDatetimes(nil)
	require.Error(t, err, "an empty column list still needs a loaded table")
	assert.True(t, errors.IsPrecondition(err))

	exportDir := t.TempDir()
	_, err = d.ExportParquet("", exportDir)
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err))

	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no file may be written before a load")
}

func TestListTablesAndColumns(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	ctx := context.Background()

	tables, err := d.ListTables(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"observations", "ignitions"}, tables)

	cols, err := d.ListColumns(ctx, "observations", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "recorded_at", "temperature"}, cols)

	_, err = d.ListColumns(ctx, "observations", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	assert.False(t, d.Loaded(), "catalogue calls never load a table")
	assert.Zero(t, d.OpenConnections())
}

func TestLoadNormalizeExportRoundTrip(t *testing.T) {
	t.Parallel()

	for _, parallel := range []bool{true, false} {
		name := "serial"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			source := createFireDB(t)
			d := newTestLoader(t, source, func(c *Config) { c.Parallel = parallel })
			ctx := context.Background()

			tables, err := d.ListTables(ctx)
			require.NoError(t, err)
			assert.Contains(t, tables, "observations")

			require.NoError(t, d.LoadTableFromQuery(ctx, "SELECT * FROM observations"))
			tbl, err := d.NormalizeDatetimes([]string{"recorded_at"})
			require.NoError(t, err)
			require.Equal(t, int64(3), tbl.NumRows())

			col, ok := tbl.Column("recorded_at")
			require.True(t, ok)
			assert.True(t, arrow.TypeEqual(table.TimestampType, col.DataType()))
			for row, hour := range []int{10, 11, 12} {
				v, err := tbl.Value("recorded_at", row)
				require.NoError(t, err)
				assert.Equal(t, time.Date(2021, 7, 14, hour, 0, 0, 0, time.UTC), v)
			}

			path, err := d.ExportParquet("", "")
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(filepath.Dir(source), DefaultExportFileName), path)

			back, err := parquetio.Read(ctx, path, memory.DefaultAllocator)
			require.NoError(t, err)
			defer back.Release()
			assert.True(t, tbl.Equal(back), "reloaded export must reproduce the rows")

			info, err := parquetio.Inspect(path)
			require.NoError(t, err)
			assert.Equal(t, "GZIP", info.Codec)
		})
	}
}

func TestParallelAndSerialNormalizeIdentically(t *testing.T) {
	t.Parallel()

	source := createFireDB(t)
	ctx := context.Background()
	query := "SELECT fire, discovered FROM ignitions"

	serial := newTestLoader(t, source, func(c *Config) { c.Parallel = false })
	require.NoError(t, serial.LoadTableFromQuery(ctx, query))
	want, err := serial.NormalizeDatetimes([]string{"discovered"})
	require.NoError(t, err)

	parallel := newTestLoader(t, source, func(c *Config) { c.Parallel = true; c.Partitions = 3 })
	require.NoError(t, parallel.LoadTableFromQuery(ctx, query))
	got, err := parallel.NormalizeDatetimes([]string{"discovered"})
	require.NoError(t, err)

	assert.True(t, want.Equal(got))
}

func TestNormalizeFailureIsIdenticalAcrossModes(t *testing.T) {
	t.Parallel()

	source := createFireDB(t)
	ctx := context.Background()

	var messages []string
	for _, parallel := range []bool{false, true} {
		d := newTestLoader(t, source, func(c *Config) { c.Parallel = parallel; c.Partitions = 2 })
		require.NoError(t, d.LoadTableFromQuery(ctx, "SELECT * FROM ignitions"))

		_, err := d.NormalizeDatetimes([]string{"discovered", "contained"})
		require.Error(t, err)
		assert.True(t, errors.IsDataFormat(err))
		messages = append(messages, err.Error())

		// columns before the failing one stay converted
		tbl, err := d.Table()
		require.NoError(t, err)
		discovered, _ := tbl.Column("discovered")
		contained, _ := tbl.Column("contained")
		assert.True(t, arrow.TypeEqual(table.TimestampType, discovered.DataType()))
		assert.Equal(t, arrow.STRING, contained.DataType().ID())
	}

	assert.Equal(t, messages[0], messages[1])
	assert.True(t, strings.HasPrefix(messages[0], `column "contained" row 1:`), messages[0])
}

func TestNormalizeMissingColumnLeavesTableUnchanged(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	require.NoError(t, d.LoadTableFromQuery(context.Background(), "SELECT * FROM observations"))

	_, err := d.NormalizeDatetimes([]string{"recorded_at", "acres"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Contains(t, err.Error(), "acres")

	tbl, err := d.Table()
	require.NoError(t, err)
	col, _ := tbl.Column("recorded_at")
	assert.Equal(t, arrow.STRING, col.DataType().ID())
}

func TestNormalizeEmptyListReturnsTableUnchanged(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	require.NoError(t, d.LoadTableFromQuery(context.Background(), "SELECT * FROM observations"))

	before, err := d.Table()
	require.NoError(t, err)
	after, err := d.NormalizeDatetimes([]string{})
	require.NoError(t, err)
	assert.Same(t, before, after)
	col, _ := after.Column("recorded_at")
	assert.Equal(t, arrow.STRING, col.DataType().ID())
}

func TestFailedLoadKeepsPreviousTable(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	ctx := context.Background()

	require.NoError(t, d.LoadTableFromQuery(ctx, "SELECT id FROM observations"))
	before, err := d.Table()
	require.NoError(t, err)

	err = d.LoadTableFromQuery(ctx, "SELECT * FROM no_such_table")
	require.Error(t, err)
	assert.True(t, errors.IsStorage(err))
	assert.Contains(t, err.Error(), "no such table")

	after, err := d.Table()
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.Equal(t, []string{"id"}, after.ColumnNames())
	assert.Zero(t, d.OpenConnections())
}

func TestFailedFirstLoadStaysUnloaded(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	err := d.LoadTableFromQuery(context.Background(), "SELEC nothing")
	require.Error(t, err)
	assert.False(t, d.Loaded())

	_, err = d.Table()
	assert.True(t, errors.IsPrecondition(err))
}

// createEventsDB writes a table with a declared DATETIME column holding the
// given text values, one row per value.
func createEventsDB(t *testing.T, values ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE events (id INTEGER PRIMARY KEY, at DATETIME)`).Error)
	for i, v := range values {
		require.NoError(t, db.Exec(`INSERT INTO events VALUES (?, ?)`, i+1, v).Error)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return path
}

func TestLoadDeclaredDatetimeColumn(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createEventsDB(t, "2021-07-14 10:00:00", "2021-07-14 11:30:00"), nil)
	require.NoError(t, d.LoadTableFromQuery(context.Background(), "SELECT id, at FROM events ORDER BY id"))

	tbl, err := d.Table()
	require.NoError(t, err)
	col, ok := tbl.Column("at")
	require.True(t, ok)
	assert.Equal(t, arrow.TIMESTAMP, col.DataType().ID())

	v, err := tbl.Value("at", 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 7, 14, 11, 30, 0, 0, time.UTC), v)
}

func TestLoadRejectsBadDeclaredDatetimes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		message string
	}{
		{"unparseable text", "garbage", "cannot parse"},
		{"outside nanosecond range", "1500-01-01 00:00:00", "outside the nanosecond timestamp range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newTestLoader(t, createEventsDB(t, "2021-07-14 10:00:00", tt.value), nil)
			err := d.LoadTableFromQuery(context.Background(), "SELECT id, at FROM events ORDER BY id")
			require.Error(t, err)
			assert.True(t, errors.IsDataFormat(err))
			assert.Contains(t, err.Error(), `column "at" row 1:`)
			assert.Contains(t, err.Error(), tt.message)
			assert.False(t, d.Loaded())
			assert.Zero(t, d.OpenConnections())
		})
	}
}

func TestLoadRenamesRepeatedColumnNames(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	ctx := context.Background()
	require.NoError(t, d.LoadTableFromQuery(ctx,
		"SELECT a.id, b.id, a.temperature FROM observations a JOIN observations b ON b.id = a.id + 1 ORDER BY a.id"))

	tbl, err := d.Table()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "id_1", "temperature"}, tbl.ColumnNames())
	assert.Equal(t, int64(2), tbl.NumRows())

	v, err := tbl.Value("id_1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	path, err := d.ExportParquet("joined.parquet", t.TempDir())
	require.NoError(t, err)
	back, err := parquetio.Read(ctx, path, nil)
	require.NoError(t, err)
	defer back.Release()
	assert.True(t, tbl.Equal(back))
}

func TestLoadReplacesTable(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	ctx := context.Background()

	require.NoError(t, d.LoadTableFromQuery(ctx, "SELECT * FROM observations"))
	require.NoError(t, d.LoadTableFromQuery(ctx, "SELECT fire FROM ignitions WHERE fire = 'Dixie'"))

	tbl, err := d.Table()
	require.NoError(t, err)
	assert.Equal(t, []string{"fire"}, tbl.ColumnNames())
	v, err := tbl.Value("fire", 0)
	require.NoError(t, err)
	assert.Equal(t, "Dixie", v)
}

func TestEmptyResultExportsAndReloads(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	ctx := context.Background()
	require.NoError(t, d.LoadTableFromQuery(ctx, "SELECT * FROM observations WHERE id > 100"))

	tbl, err := d.NormalizeDatetimes([]string{"recorded_at"})
	require.NoError(t, err)
	assert.Zero(t, tbl.NumRows())

	path, err := d.ExportParquet("empty.parquet", t.TempDir())
	require.NoError(t, err)

	back, err := parquetio.Read(ctx, path, nil)
	require.NoError(t, err)
	defer back.Release()
	assert.Zero(t, back.NumRows())
	assert.Equal(t, []string{"id", "recorded_at", "temperature"}, back.ColumnNames())
}

func TestExportToMissingDirectoryIsStorageError(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	require.NoError(t, d.LoadTableFromQuery(context.Background(), "SELECT * FROM observations"))

	_, err := d.ExportParquet("out.parquet", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsStorage(err))
}

func TestExportHonoursCompressionSetting(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), func(c *Config) { c.Compression = "zstd" })
	require.NoError(t, d.LoadTableFromQuery(context.Background(), "SELECT * FROM observations"))

	path, err := d.ExportParquet("obs.parquet", t.TempDir())
	require.NoError(t, err)
	info, err := parquetio.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "ZSTD", info.Codec)
	assert.Equal(t, int64(3), info.Rows)
}

func TestMetricsAreRecorded(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewLoaderMetrics(registry)
	require.NoError(t, err)

	d := newTestLoader(t, createFireDB(t), func(c *Config) { c.Partitions = 2 }, WithMetrics(m))
	ctx := context.Background()

	_, err = d.Table()
	require.Error(t, err)
	require.NoError(t, d.LoadTableFromQuery(ctx, "SELECT * FROM observations"))
	_, err = d.NormalizeDatetimes([]string{"recorded_at"})
	require.NoError(t, err)
	_, err = d.ExportParquet("", t.TempDir())
	require.NoError(t, err)

	assert.InDelta(t, 3, counterValue(t, registry, "wildfire_loader_rows_loaded_total", nil), 0)
	assert.InDelta(t, 1, counterValue(t, registry, "wildfire_loader_operations_total",
		map[string]string{"operation": metrics.OpLoadQuery, "status": metrics.StatusSuccess}), 0)
	assert.InDelta(t, 1, counterValue(t, registry, "wildfire_loader_operations_total",
		map[string]string{"operation": metrics.OpNormalize, "status": metrics.StatusSuccess}), 0)
	assert.InDelta(t, 1, counterValue(t, registry, "wildfire_loader_operations_total",
		map[string]string{"operation": metrics.OpExport, "status": metrics.StatusSuccess}), 0)
	assert.InDelta(t, 1, counterValue(t, registry, "wildfire_loader_errors_total",
		map[string]string{"operation": "table", "error_type": string(errors.CategoryPrecondition)}), 0)
	assert.InDelta(t, 2, counterValue(t, registry, "wildfire_loader_normalize_partitions", nil), 0)
	assert.InDelta(t, 0, counterValue(t, registry, "wildfire_loader_open_connections", nil), 0)
}

func TestProgressIsDrawnWhenEnabled(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	d := newTestLoader(t, createFireDB(t), func(c *Config) { c.Progress = true }, WithProgressWriter(&buf))
	require.NoError(t, d.LoadTableFromQuery(context.Background(), "SELECT * FROM observations"))
	_, err := d.NormalizeDatetimes([]string{"recorded_at"})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "normalizing datetimes")
}

func TestAccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, "/data/fires.db", func(c *Config) { c.InputFields = []string{"wind"} })

	assert.Equal(t, "2021-07-01", d.StartDate())
	assert.Equal(t, "2021-09-30", d.EndDate())

	truth := d.TruthFields()
	truth[0] = "changed"
	assert.Equal(t, []string{"burned"}, d.TruthFields())

	inputs := d.InputFields()
	inputs[0] = "changed"
	assert.Equal(t, []string{"wind"}, d.InputFields())

	cfg := d.Config()
	cfg.TruthFields[0] = "changed"
	assert.Equal(t, []string{"burned"}, d.Config().TruthFields)
}

func TestCloseReturnsToUnloaded(t *testing.T) {
	t.Parallel()

	d := newTestLoader(t, createFireDB(t), nil)
	require.NoError(t, d.LoadTableFromQuery(context.Background(), "SELECT * FROM observations"))
	require.True(t, d.Loaded())

	d.Close()
	assert.False(t, d.Loaded())
	_, err := d.Table()
	assert.True(t, errors.IsPrecondition(err))

	d.Close()
}
