// Package table holds query results in memory as named, equally long
// Apache Arrow columns.
package table

import (
	"fmt"
	"slices"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/tphakala/wildfire-loader/internal/errors"
)

// TimestampType is the type of every normalized datetime column.
var TimestampType = arrow.FixedWidthTypes.Timestamp_ns

// Table is an ordered set of named columns with a common row count.
// A Table is not safe for concurrent mutation.
type Table struct {
	fields  []arrow.Field
	columns []arrow.Array
	rows    int64
}

// New creates a table from fields and columns of equal length. The table
// takes ownership of the columns' references.
func New(fields []arrow.Field, columns []arrow.Array) (*Table, error) {
	if len(fields) != len(columns) {
		return nil, errors.Newf("table: %d fields but %d columns", len(fields), len(columns)).
			Category(errors.CategoryValidation).
			Build()
	}

	var rows int64
	seen := make(map[string]struct{}, len(fields))
	for i, col := range columns {
		if _, dup := seen[fields[i].Name]; dup {
			return nil, errors.Newf("table: duplicate column name %q", fields[i].Name).
				Category(errors.CategoryValidation).
				Build()
		}
		seen[fields[i].Name] = struct{}{}

		if !arrow.TypeEqual(fields[i].Type, col.DataType()) {
			return nil, errors.Newf("table: column %q has type %s, field says %s", fields[i].Name, col.DataType(), fields[i].Type).
				Category(errors.CategoryValidation).
				Build()
		}
		if i == 0 {
			rows = int64(col.Len())
		} else if int64(col.Len()) != rows {
			return nil, errors.Newf("table: column %q has %d rows, expected %d", fields[i].Name, col.Len(), rows).
				Category(errors.CategoryValidation).
				Build()
		}
	}

	return &Table{
		fields:  slices.Clone(fields),
		columns: slices.Clone(columns),
		rows:    rows,
	}, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int64 { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.columns) }

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.fields))
	for i, f := range t.fields {
		names[i] = f.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	return slices.IndexFunc(t.fields, func(f arrow.Field) bool { return f.Name == name })
}

// Column returns the named column.
func (t *Table) Column(name string) (arrow.Array, bool) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, false
	}
	return t.columns[i], true
}

// Field returns the i-th field.
func (t *Table) Field(i int) arrow.Field { return t.fields[i] }

// SizeBytes returns the total length of the column buffers, an upper bound
// for the uncompressed export size.
func (t *Table) SizeBytes() int64 {
	var n int64
	for _, c := range t.columns {
		for _, b := range c.Data().Buffers() {
			if b != nil {
				n += int64(b.Len())
			}
		}
	}
	return n
}

// Schema returns the arrow schema of the table.
func (t *Table) Schema() *arrow.Schema {
	return arrow.NewSchema(slices.Clone(t.fields), nil)
}

// ReplaceColumn swaps the named column for arr, keeping its position. The
// field type follows arr. The table takes ownership of arr and releases the
// previous column.
func (t *Table) ReplaceColumn(name string, arr arrow.Array) error {
	i := t.ColumnIndex(name)
	if i < 0 {
		return errors.Newf("table: no column named %q", name).
			Category(errors.CategoryValidation).
			Context("column", name).
			Build()
	}
	if int64(arr.Len()) != t.rows {
		return errors.Newf("table: replacement for %q has %d rows, expected %d", name, arr.Len(), t.rows).
			Category(errors.CategoryValidation).
			Context("column", name).
			Build()
	}

	old := t.columns[i]
	t.columns[i] = arr
	t.fields[i].Type = arr.DataType()
	if old != arr {
		old.Release()
	}
	return nil
}

// Equal reports whether both tables have the same column names, types,
// order, and values.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.rows != o.rows || len(t.fields) != len(o.fields) {
		return false
	}
	for i := range t.fields {
		if t.fields[i].Name != o.fields[i].Name || !arrow.TypeEqual(t.fields[i].Type, o.fields[i].Type) {
			return false
		}
		if !array.Equal(t.columns[i], o.columns[i]) {
			return false
		}
	}
	return true
}

// Value returns the Go value at row of the named column: int64, float64,
// bool, string, []byte or time.Time (UTC). Nulls are returned as nil.
func (t *Table) Value(column string, row int) (any, error) {
	col, ok := t.Column(column)
	if !ok {
		return nil, errors.Newf("table: no column named %q", column).
			Category(errors.CategoryValidation).
			Build()
	}
	if row < 0 || row >= col.Len() {
		return nil, errors.Newf("table: row %d out of range [0,%d)", row, col.Len()).
			Category(errors.CategoryValidation).
			Build()
	}
	if col.IsNull(row) {
		return nil, nil
	}

	switch a := col.(type) {
	case *array.Int64:
		return a.Value(row), nil
	case *array.Float64:
		return a.Value(row), nil
	case *array.Boolean:
		return a.Value(row), nil
	case *array.String:
		return a.Value(row), nil
	case *array.Binary:
		return slices.Clone(a.Value(row)), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(row).ToTime(unit).UTC(), nil
	default:
		return a.ValueStr(row), nil
	}
}

// ToArrow returns the table as a single-chunk arrow.Table. The caller must
// release it.
func (t *Table) ToArrow() arrow.Table {
	schema := t.Schema()
	rec := array.NewRecord(schema, t.columns, t.rows)
	defer rec.Release()
	return array.NewTableFromRecords(schema, []arrow.Record{rec})
}

// FromArrow copies an arrow.Table into a Table, concatenating chunks.
func FromArrow(tbl arrow.Table, mem memory.Allocator) (*Table, error) {
	schema := tbl.Schema()
	fields := make([]arrow.Field, 0, tbl.NumCols())
	columns := make([]arrow.Array, 0, tbl.NumCols())

	release := func() {
		for _, c := range columns {
			c.Release()
		}
	}

	for i := range int(tbl.NumCols()) {
		field := schema.Field(i)
		chunks := tbl.Column(i).Data().Chunks()

		var arr arrow.Array
		switch len(chunks) {
		case 0:
			arr = array.MakeArrayOfNull(mem, field.Type, 0)
		case 1:
			arr = chunks[0]
			arr.Retain()
		default:
			var err error
			arr, err = array.Concatenate(chunks, mem)
			if err != nil {
				release()
				return nil, fmt.Errorf("table: concatenate column %q: %w", field.Name, err)
			}
		}

		fields = append(fields, field)
		columns = append(columns, arr)
	}

	t, err := New(fields, columns)
	if err != nil {
		release()
		return nil, err
	}
	return t, nil
}

// Release drops the table's references to its columns.
func (t *Table) Release() {
	if t == nil {
		return
	}
	for _, c := range t.columns {
		c.Release()
	}
	t.columns = nil
	t.fields = nil
	t.rows = 0
}

// formatTime renders times in string columns the way SQLite stores them.
func formatTime(v time.Time) string {
	return v.UTC().Format(time.RFC3339Nano)
}
