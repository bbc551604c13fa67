// Package loader implements the wildfire DataLoader: scoped queries against a
// SQLite source, an in-memory result table, datetime normalization and
// Parquet export.
package loader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/google/uuid"

	"github.com/tphakala/wildfire-loader/internal/datastore"
	"github.com/tphakala/wildfire-loader/internal/datetime"
	"github.com/tphakala/wildfire-loader/internal/diskmanager"
	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/logger"
	"github.com/tphakala/wildfire-loader/internal/observability/metrics"
	"github.com/tphakala/wildfire-loader/internal/parquetio"
	"github.com/tphakala/wildfire-loader/internal/table"
)

// ErrNoTableLoaded is returned, wrapped as a precondition error, by every
// operation that needs a loaded table when none has been loaded.
var ErrNoTableLoaded = errors.NewStd("no table loaded: load one with LoadTableFromQuery first")

// DataLoader holds at most one query result at a time. Database calls open
// and close their own connection. A DataLoader is not safe for concurrent
// use.
type DataLoader struct {
	cfg   Config
	codec compress.Compression

	source     *datastore.SQLiteSource
	normalizer *datetime.Normalizer

	log      logger.Logger
	recorder metrics.Recorder
	metrics  *metrics.LoaderMetrics
	mem      memory.Allocator
	progress io.Writer

	current *table.Table
	loadID  string
}

// Option configures a DataLoader.
type Option func(*DataLoader)

// WithLogger sets the parent logger; the loader logs under module "loader".
func WithLogger(l logger.Logger) Option {
	return func(d *DataLoader) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMetrics records operations in m.
func WithMetrics(m *metrics.LoaderMetrics) Option {
	return func(d *DataLoader) {
		if m != nil {
			d.metrics = m
			d.recorder = m
		}
	}
}

// WithAllocator sets the arrow allocator for loaded and converted columns.
func WithAllocator(mem memory.Allocator) Option {
	return func(d *DataLoader) {
		if mem != nil {
			d.mem = mem
		}
	}
}

// WithProgressWriter sets where the normalization spinner is drawn when
// progress is enabled. The default is stderr.
func WithProgressWriter(w io.Writer) Option {
	return func(d *DataLoader) {
		if w != nil {
			d.progress = w
		}
	}
}

// New validates cfg and creates a loader with no table loaded. Callers
// should build cfg from DefaultConfig so optional fields keep their
// defaults.
func New(cfg Config, opts ...Option) (*DataLoader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := parquetio.ParseCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	d := &DataLoader{
		cfg:      cfg.clone(),
		codec:    codec,
		log:      logger.NewSlogLogger(nil, logger.LogLevelInfo, nil),
		recorder: metrics.NoopRecorder{},
		mem:      memory.DefaultAllocator,
		progress: os.Stderr,
	}
	for _, opt := range opts {
		opt(d)
	}

	sourceOpts := []datastore.Option{
		datastore.WithLogger(d.log.Module("datastore")),
		datastore.WithRecorder(d.recorder),
		datastore.WithAllocator(d.mem),
	}
	if d.metrics != nil {
		sourceOpts = append(sourceOpts, datastore.WithConnectionObserver(d.metrics.SetOpenConnections))
	}
	d.source = datastore.NewSQLiteSource(cfg.SourcePath, sourceOpts...)

	normOpts := datetime.Options{
		Parallel:   cfg.Parallel,
		Partitions: cfg.Partitions,
		Logger:     d.log.Module("datetime"),
		Allocator:  d.mem,
	}
	if cfg.Progress {
		normOpts.Progress = d.progress
	}
	d.normalizer = datetime.NewNormalizer(normOpts)

	d.log = d.log.Module("loader")
	d.log.Debug("data loader configured",
		logger.String("source", cfg.SourcePath),
		logger.String("start_date", cfg.StartDate),
		logger.String("end_date", cfg.EndDate),
		logger.Bool("parallel", cfg.Parallel),
		logger.Int("partitions", d.normalizer.Partitions()),
		logger.String("compression", codec.String()))
	return d, nil
}

// ListTables returns the table names in the source catalogue.
func (d *DataLoader) ListTables(ctx context.Context) ([]string, error) {
	return d.source.ListTables(ctx)
}

// ListColumns returns the column names seen in up to limit rows of
// tableName. Use datastore.DefaultColumnSampleLimit for the usual sample.
func (d *DataLoader) ListColumns(ctx context.Context, tableName string, limit int) ([]string, error) {
	return d.source.ListColumns(ctx, tableName, limit)
}

// LoadTableFromQuery runs query verbatim and makes its result the current
// table. On failure the current table is left as it was. A successful load
// releases the previous table, so tables obtained earlier must not be used
// afterwards.
func (d *DataLoader) LoadTableFromQuery(ctx context.Context, query string) error {
	loadID := uuid.NewString()
	log := d.log.With(logger.String("load_id", loadID))
	ctx = logger.WithTraceID(ctx, loadID)
	start := time.Now()

	d.logResources(log)
	log.Debug("loading table from query", logger.String("query", query))

	tbl, err := d.source.Query(ctx, query)
	if err != nil {
		log.Debug("query failed", logger.Error(err))
		d.record(metrics.OpLoadQuery, start, err)
		return err
	}

	previous := d.current
	d.current = tbl
	d.loadID = loadID
	previous.Release()

	if d.metrics != nil {
		d.metrics.AddRowsLoaded(tbl.NumRows())
	}
	d.record(metrics.OpLoadQuery, start, nil)
	log.Info("table loaded",
		logger.Int64("rows", tbl.NumRows()),
		logger.Int("columns", tbl.NumCols()),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Table returns the current table.
func (d *DataLoader) Table() (*table.Table, error) {
	if err := d.requireTable("table"); err != nil {
		return nil, err
	}
	return d.current, nil
}

// NormalizeDatetimes converts the named columns of the current table to UTC
// timestamps in place and returns the table. An empty list leaves the table
// unchanged. If a column fails, columns before it in the list stay
// converted and the rest are untouched.
func (d *DataLoader) NormalizeDatetimes(columns []string) (*table.Table, error) {
	if err := d.requireTable(metrics.OpNormalize); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return d.current, nil
	}

	log := d.log.With(logger.String("load_id", d.loadID))
	log.Info("normalizing datetime columns",
		logger.Strings("columns", columns),
		logger.Bool("parallel", d.normalizer.Parallel()))

	start := time.Now()
	err := d.normalizer.Normalize(d.current, columns)
	d.record(metrics.OpNormalize, start, err)
	if err != nil {
		return nil, err
	}
	if d.metrics != nil && d.normalizer.Parallel() {
		d.metrics.SetPartitions(d.normalizer.Partitions())
	}
	return d.current, nil
}

// ExportParquet writes the current table to destDir/fileName with the
// configured codec and returns the written path. An empty fileName means
// DefaultExportFileName; an empty destDir means the directory holding the
// source database.
func (d *DataLoader) ExportParquet(fileName, destDir string) (string, error) {
	if err := d.requireTable(metrics.OpExport); err != nil {
		return "", err
	}
	if fileName == "" {
		fileName = DefaultExportFileName
	}
	if destDir == "" {
		destDir = filepath.Dir(d.cfg.SourcePath)
	}
	path := filepath.Join(destDir, fileName)

	log := d.log.With(logger.String("load_id", d.loadID))
	log.Info("saving table to parquet",
		logger.String("path", path),
		logger.String("compression", d.codec.String()))
	d.checkDiskSpace(log, destDir)

	start := time.Now()
	size, err := parquetio.Write(d.current, path, d.codec)
	d.record(metrics.OpExport, start, err)
	if err != nil {
		return "", err
	}
	if d.metrics != nil {
		d.metrics.ObserveExportSize(size)
	}
	log.Debug("parquet export finished",
		logger.Int64("bytes", size),
		logger.Duration("elapsed", time.Since(start)))
	return path, nil
}

// Loaded reports whether a table is loaded.
func (d *DataLoader) Loaded() bool { return d.current != nil }

// OpenConnections returns the number of source connections currently open.
func (d *DataLoader) OpenConnections() int64 { return d.source.OpenConnections() }

// Config returns a copy of the loader configuration.
func (d *DataLoader) Config() Config { return d.cfg.clone() }

// StartDate returns the configured window start, unparsed.
func (d *DataLoader) StartDate() string { return d.cfg.StartDate }

// EndDate returns the configured window end, unparsed.
func (d *DataLoader) EndDate() string { return d.cfg.EndDate }

// TruthFields returns a copy of the ground-truth column names.
func (d *DataLoader) TruthFields() []string { return slices.Clone(d.cfg.TruthFields) }

// InputFields returns a copy of the input column names, nil when unset.
func (d *DataLoader) InputFields() []string { return slices.Clone(d.cfg.InputFields) }

// Close releases the current table. The loader returns to its constructed
// state.
func (d *DataLoader) Close() {
	d.current.Release()
	d.current = nil
	d.loadID = ""
}

func (d *DataLoader) requireTable(operation string) error {
	if d.current != nil {
		return nil
	}
	err := errors.New(ErrNoTableLoaded).
		Component("loader").
		Category(errors.CategoryPrecondition).
		Context("operation", operation).
		Build()
	d.recorder.RecordError(operation, string(errors.CategoryPrecondition))
	return err
}

func (d *DataLoader) record(operation string, start time.Time, err error) {
	d.recorder.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		d.recorder.RecordOperation(operation, metrics.StatusError)
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			d.recorder.RecordError(operation, ee.GetCategory())
		}
		return
	}
	d.recorder.RecordOperation(operation, metrics.StatusSuccess)
}

// logResources logs host memory next to the source size, since results
// are held entirely in memory.
func (d *DataLoader) logResources(log logger.Logger) {
	snap, err := datastore.CaptureResourceSnapshot(d.cfg.SourcePath)
	if err != nil {
		log.Debug("resource snapshot incomplete", logger.Error(err))
	}
	if snap == nil {
		return
	}
	log.Debug("resources before load",
		logger.Int64("source_bytes", snap.DatabaseFile.SizeBytes),
		logger.Uint64("memory_available_bytes", snap.SystemMemory.AvailableBytes),
		logger.Int64("heap_alloc_mb", snap.ProcessInfo.HeapAllocMB))
	if !snap.FitsInMemory(snap.DatabaseFile.SizeBytes) {
		log.Warn("source database is larger than available memory",
			logger.Int64("source_bytes", snap.DatabaseFile.SizeBytes),
			logger.Uint64("memory_available_bytes", snap.SystemMemory.AvailableBytes))
	}
}

// checkDiskSpace warns when the uncompressed table would not fit in dir.
// It only warns; compressed output is usually much smaller.
func (d *DataLoader) checkDiskSpace(log logger.Logger, dir string) {
	info, err := diskmanager.GetDetailedDiskUsage(dir)
	if err != nil {
		log.Debug("disk usage unavailable", logger.Error(err))
		return
	}
	if need := d.current.SizeBytes(); !info.HasRoomFor(need) {
		log.Warn("export directory may not have room for the table",
			logger.String("dir", dir),
			logger.Int64("table_bytes", need),
			logger.Uint64("available_bytes", info.AvailableBytes))
	}
}
