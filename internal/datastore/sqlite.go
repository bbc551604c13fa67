// Package datastore provides scoped, read-only access to SQLite source files.
package datastore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/logger"
	"github.com/tphakala/wildfire-loader/internal/observability/metrics"
	"github.com/tphakala/wildfire-loader/internal/table"
)

// DefaultColumnSampleLimit is the number of rows sampled by ListColumns
// when the caller has no preference.
const DefaultColumnSampleLimit = 100

// DefaultSlowQueryThreshold is the duration above which statements are
// logged at WARN.
const DefaultSlowQueryThreshold = 5 * time.Second

// SQLiteSource opens a fresh read-only connection for every call and closes
// it before returning. No connection outlives the call that opened it.
type SQLiteSource struct {
	path          string
	log           logger.Logger
	recorder      metrics.Recorder
	allocator     memory.Allocator
	slowThreshold time.Duration
	onConnChange  func(open int64)

	open atomic.Int64
}

// Option configures a SQLiteSource.
type Option func(*SQLiteSource)

// WithLogger sets the logger used for connection and SQL logging.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLiteSource) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *SQLiteSource) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithAllocator sets the arrow allocator used for query results.
func WithAllocator(mem memory.Allocator) Option {
	return func(s *SQLiteSource) {
		if mem != nil {
			s.allocator = mem
		}
	}
}

// WithSlowQueryThreshold sets the slow statement threshold; 0 disables it.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *SQLiteSource) { s.slowThreshold = d }
}

// WithConnectionObserver registers fn to be called with the number of open
// connections whenever a connection is opened or closed.
func WithConnectionObserver(fn func(open int64)) Option {
	return func(s *SQLiteSource) { s.onConnChange = fn }
}

// NewSQLiteSource creates a source for the database file at path. The file
// is not touched until the first call.
func NewSQLiteSource(path string, opts ...Option) *SQLiteSource {
	s := &SQLiteSource{
		path:          path,
		log:           logger.NewSlogLogger(nil, logger.LogLevelInfo, nil).Module("datastore"),
		recorder:      metrics.NoopRecorder{},
		allocator:     memory.DefaultAllocator,
		slowThreshold: DefaultSlowQueryThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the database file path.
func (s *SQLiteSource) Path() string { return s.path }

// OpenConnections returns the number of connections currently open.
// It is zero whenever no call is in progress.
func (s *SQLiteSource) OpenConnections() int64 { return s.open.Load() }

// ListTables returns the names of all tables in the database catalogue.
func (s *SQLiteSource) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	err := s.withDatabase(ctx, metrics.OpListTables, func(db *gorm.DB) error {
		return db.Raw("SELECT name FROM sqlite_master WHERE type = 'table'").Scan(&names).Error
	})
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// ListColumns returns the column names seen when sampling up to limit rows
// of tableName. The name is passed to the engine as is; an unknown table
// surfaces as the engine's error.
func (s *SQLiteSource) ListColumns(ctx context.Context, tableName string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, validationError(fmt.Sprintf("limit must be a positive integer, got %d", limit), "limit", limit)
	}

	var columns []string
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", tableName, limit)
	err := s.withDatabase(ctx, metrics.OpListColumns, func(db *gorm.DB) error {
		rows, err := db.Raw(query).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()

		columns, err = rows.Columns()
		if err != nil {
			return err
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return columns, nil
}

// Query runs query verbatim and returns its full result as a table.
func (s *SQLiteSource) Query(ctx context.Context, query string) (*table.Table, error) {
	var result *table.Table
	err := s.withDatabase(ctx, metrics.OpLoadQuery, func(db *gorm.DB) error {
		rows, err := db.Raw(query).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()

		result, err = table.FromRows(rows, s.allocator)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withDatabase opens a read-only connection, runs fn and closes the
// connection on every exit path. Errors from fn are returned as storage
// errors unless they already carry a category.
func (s *SQLiteSource) withDatabase(ctx context.Context, operation string, fn func(db *gorm.DB) error) (err error) {
	start := time.Now()
	defer func() {
		s.recorder.RecordDuration(operation, time.Since(start).Seconds())
		if err != nil {
			s.recorder.RecordOperation(operation, metrics.StatusError)
			s.recorder.RecordError(operation, errorType(err))
			return
		}
		s.recorder.RecordOperation(operation, metrics.StatusSuccess)
	}()

	// the driver would silently create a missing file
	if _, statErr := os.Stat(s.path); statErr != nil {
		return storageError(statErr, operation, s.path, time.Since(start))
	}

	db, err := gorm.Open(sqlite.Open(readOnlyDSN(s.path)), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(s.log, s.slowThreshold),
	})
	if err != nil {
		return storageError(err, operation, s.path, time.Since(start))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return storageError(err, operation, s.path, time.Since(start))
	}
	sqlDB.SetMaxOpenConns(1)

	s.trackConnection(1)
	s.log.Debug("opened source database",
		logger.String("operation", operation),
		logger.String("path", s.path))

	defer func() {
		if closeErr := sqlDB.Close(); closeErr != nil {
			s.log.Warn("failed to close source database",
				logger.String("operation", operation),
				logger.Error(closeErr))
		}
		s.trackConnection(-1)
		s.log.Debug("closed source database",
			logger.String("operation", operation),
			logger.Duration("elapsed", time.Since(start)))
	}()

	if err := fn(db.WithContext(ctx)); err != nil {
		var categorized *errors.EnhancedError
		if errors.As(err, &categorized) {
			return err
		}
		return storageError(err, operation, s.path, time.Since(start))
	}
	return nil
}

func (s *SQLiteSource) trackConnection(delta int64) {
	n := s.open.Add(delta)
	if s.onConnChange != nil {
		s.onConnChange(n)
	}
}

// readOnlyDSN builds a SQLite URI that opens path read-only.
func readOnlyDSN(path string) string {
	u := url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}
	if !strings.HasPrefix(path, "/") {
		// relative paths stay relative: file:data/fires.db?mode=ro
		u.Opaque = (&url.URL{Path: path}).EscapedPath()
	}
	return u.String()
}

func errorType(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return errors.ComponentUnknown
}
