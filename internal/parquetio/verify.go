package parquetio

import (
	"context"
	"fmt"
	"reflect"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/tphakala/wildfire-loader/internal/table"
)

// Report is the outcome of comparing a Parquet file with a table.
type Report struct {
	Path         string
	ExpectedRows int64
	ActualRows   int64
	Columns      []ColumnCheck
	// Problems lists every mismatch found; empty means the file matches.
	Problems []string
}

// ColumnCheck is the per-column result.
type ColumnCheck struct {
	Name  string
	Type  string
	Match bool
}

// OK reports whether the file reproduces the table.
func (r *Report) OK() bool { return len(r.Problems) == 0 }

func (r *Report) addProblem(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Verify reads the Parquet file at path and compares it with want: row
// count first, then column names and types, then values column by column.
func Verify(ctx context.Context, want *table.Table, path string, mem memory.Allocator) (*Report, error) {
	got, err := Read(ctx, path, mem)
	if err != nil {
		return nil, err
	}
	defer got.Release()

	report := &Report{
		Path:         path,
		ExpectedRows: want.NumRows(),
		ActualRows:   got.NumRows(),
	}
	if report.ExpectedRows != report.ActualRows {
		report.addProblem("row count: expected %d, found %d", report.ExpectedRows, report.ActualRows)
	}

	for i := range want.NumCols() {
		field := want.Field(i)
		check := ColumnCheck{Name: field.Name, Type: field.Type.String()}

		idx := got.ColumnIndex(field.Name)
		switch {
		case idx < 0:
			report.addProblem("column %q missing from file", field.Name)
		case idx != i:
			report.addProblem("column %q at position %d, expected %d", field.Name, idx, i)
		case !arrow.TypeEqual(field.Type, got.Field(idx).Type):
			report.addProblem("column %q has type %s, expected %s", field.Name, got.Field(idx).Type, field.Type)
		case report.ExpectedRows == report.ActualRows:
			check.Match = compareValues(report, want, got, field.Name)
		}
		report.Columns = append(report.Columns, check)
	}
	if extra := got.NumCols() - want.NumCols(); extra > 0 {
		report.addProblem("file has %d unexpected extra columns", extra)
	}
	return report, nil
}

func compareValues(report *Report, want, got *table.Table, name string) bool {
	a, _ := want.Column(name)
	b, _ := got.Column(name)
	if array.Equal(a, b) {
		return true
	}
	for row := range a.Len() {
		wv, _ := want.Value(name, row)
		gv, _ := got.Value(name, row)
		if !reflect.DeepEqual(wv, gv) {
			report.addProblem("column %q row %d: expected %v, found %v", name, row, wv, gv)
			return false
		}
	}
	report.addProblem("column %q differs", name)
	return false
}
