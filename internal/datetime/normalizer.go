package datetime

import (
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/logger"
	"github.com/tphakala/wildfire-loader/internal/table"
	"github.com/tphakala/wildfire-loader/pkg/spinner"
)

// Options configures a Normalizer.
type Options struct {
	// Parallel fans conversion out over goroutines.
	Parallel bool
	// Partitions bounds the number of concurrent conversions and the number
	// of row ranges per column. Zero or less means DetectPartitions.
	Partitions int
	// Progress receives a spinner when non-nil.
	Progress io.Writer
	Logger   logger.Logger
	// Allocator for the converted columns; defaults to memory.DefaultAllocator.
	Allocator memory.Allocator
}

// Normalizer replaces table columns with timestamp[ns, UTC] columns. The
// serial and parallel paths produce identical tables and identical errors.
type Normalizer struct {
	parallel   bool
	partitions int
	progress   io.Writer
	log        logger.Logger
	mem        memory.Allocator
}

// DetectPartitions returns the number of logical cores.
func DetectPartitions() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// NewNormalizer creates a normalizer.
func NewNormalizer(opts Options) *Normalizer {
	n := &Normalizer{
		parallel:   opts.Parallel,
		partitions: opts.Partitions,
		progress:   opts.Progress,
		log:        opts.Logger,
		mem:        opts.Allocator,
	}
	if n.partitions <= 0 {
		n.partitions = DetectPartitions()
	}
	if n.log == nil {
		n.log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	if n.mem == nil {
		n.mem = memory.DefaultAllocator
	}
	return n
}

// Parallel reports whether the parallel path is used.
func (n *Normalizer) Parallel() bool { return n.parallel }

// Partitions returns the resolved partition count.
func (n *Normalizer) Partitions() int { return n.partitions }

// columnJob is the conversion state of one requested column.
type columnJob struct {
	name   string
	source arrow.Array
	out    []arrow.Timestamp
	valid  []bool
	// errs holds the first failure of each row range, in row order
	errs []error
}

func (j *columnJob) firstError() error {
	for _, err := range j.errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Normalize converts the named columns of tbl in place. Every column must
// exist; a missing name fails before anything is converted. Columns are
// applied in request order: when a column fails, earlier columns stay
// converted and that column and later ones are left untouched.
func (n *Normalizer) Normalize(tbl *table.Table, columns []string) error {
	columns = dedupe(columns)
	if len(columns) == 0 {
		return nil
	}

	for _, name := range columns {
		if tbl.ColumnIndex(name) < 0 {
			return errors.Newf("column %q not found in loaded table", name).
				Component("datetime").
				Category(errors.CategoryValidation).
				Context("column", name).
				Build()
		}
	}

	start := time.Now()
	rows := int(tbl.NumRows())

	var jobs []*columnJob
	for _, name := range columns {
		col, _ := tbl.Column(name)
		if arrow.TypeEqual(col.DataType(), table.TimestampType) {
			continue
		}
		jobs = append(jobs, &columnJob{
			name:   name,
			source: col,
			out:    make([]arrow.Timestamp, rows),
			valid:  make([]bool, rows),
		})
	}

	ranges := splitRows(rows, 1)
	if n.parallel {
		ranges = splitRows(rows, n.partitions)
	}

	progress := n.startProgress(len(jobs) * len(ranges))
	if n.parallel {
		n.convertParallel(jobs, ranges, progress)
	} else {
		n.convertSerial(jobs, ranges, progress)
	}
	progress.finish()

	for _, job := range jobs {
		if err := job.firstError(); err != nil {
			n.log.Debug("datetime conversion failed",
				logger.String("column", job.name),
				logger.Error(err))
			return err
		}
		converted := n.buildColumn(job)
		if err := tbl.ReplaceColumn(job.name, converted); err != nil {
			converted.Release()
			return err
		}
	}

	n.log.Debug("normalized datetime columns",
		logger.Strings("columns", columns),
		logger.Bool("parallel", n.parallel),
		logger.Int("partitions", len(ranges)),
		logger.Int("rows", rows),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// convertSerial converts on the calling goroutine and stops at the first
// failing column, since nothing after it would be applied.
func (n *Normalizer) convertSerial(jobs []*columnJob, ranges [][2]int, progress *progressReporter) {
	for _, job := range jobs {
		job.errs = make([]error, len(ranges))
		for i, r := range ranges {
			job.errs[i] = convertRange(job.name, job.source, r[0], r[1], job.out, job.valid)
			progress.step()
		}
		if job.firstError() != nil {
			return
		}
	}
}

// convertParallel converts every row range of every column concurrently,
// bounded by the partition count. Ranges write disjoint slices of the
// column buffers.
func (n *Normalizer) convertParallel(jobs []*columnJob, ranges [][2]int, progress *progressReporter) {
	var g errgroup.Group
	g.SetLimit(n.partitions)

	for _, job := range jobs {
		job.errs = make([]error, len(ranges))
		for i, r := range ranges {
			g.Go(func() error {
				job.errs[i] = convertRange(job.name, job.source, r[0], r[1], job.out, job.valid)
				progress.step()
				return nil
			})
		}
	}
	_ = g.Wait() // tasks record failures per range
}

func (n *Normalizer) buildColumn(job *columnJob) arrow.Array {
	b := array.NewTimestampBuilder(n.mem, table.TimestampType.(*arrow.TimestampType))
	defer b.Release()
	b.AppendValues(job.out, job.valid)
	return b.NewArray()
}

// splitRows divides [0, rows) into at most parts contiguous ranges of
// near-equal size. It always returns at least one range.
func splitRows(rows, parts int) [][2]int {
	if parts > rows {
		parts = rows
	}
	if parts < 1 {
		parts = 1
	}
	ranges := make([][2]int, parts)
	size, extra := rows/parts, rows%parts
	lo := 0
	for i := range parts {
		hi := lo + size
		if i < extra {
			hi++
		}
		ranges[i] = [2]int{lo, hi}
		lo = hi
	}
	return ranges
}

func dedupe(columns []string) []string {
	seen := make(map[string]struct{}, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// progressReporter drives the spinner. A nil reporter is a no-op.
type progressReporter struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
	done    int
	total   int
}

func (n *Normalizer) startProgress(total int) *progressReporter {
	if n.progress == nil || total == 0 {
		return nil
	}
	return &progressReporter{
		spinner: spinner.NewSpinner(n.progress, "normalizing datetimes"),
		total:   total,
	}
}

func (p *progressReporter) step() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.spinner.Update(p.done, p.total)
}

func (p *progressReporter) finish() {
	if p == nil {
		return
	}
	p.spinner.Cleanup()
}
