package table

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/tphakala/wildfire-loader/internal/errors"
)

// Rows is the subset of *sql.Rows the builder reads from.
type Rows interface {
	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// FromRows drains rows into a new Table. Column types are inferred from the
// scanned values; a column that is entirely NULL falls back to its declared
// SQL type. Mixed columns become strings. Repeated result column names,
// as in a join selecting a.id and b.id, are made unique by suffixing later
// occurrences: id, id_1, id_2.
func FromRows(rows Rows, mem memory.Allocator) (*Table, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	names = uniqueNames(names)
	declared := make([]string, len(names))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			if i < len(declared) && ct != nil {
				declared[i] = ct.DatabaseTypeName()
			}
		}
	}

	values := make([][]any, len(names))
	dest := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for row := 0; rows.Next(); row++ {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range dest {
			switch x := v.(type) {
			case []byte:
				// drivers may reuse byte buffers between rows
				v = append([]byte(nil), x...)
			case time.Time:
				if err := checkTime(x); err != nil {
					return nil, timeValueError(names[i], row, err)
				}
			}
			values[i] = append(values[i], v)
			dest[i] = nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fields := make([]arrow.Field, len(names))
	columns := make([]arrow.Array, len(names))
	for i, name := range names {
		dt := inferType(values[i], declared[i])
		arr, err := buildArray(mem, dt, values[i])
		if err != nil {
			for _, c := range columns[:i] {
				c.Release()
			}
			return nil, errors.New(err).
				Category(errors.CategoryDataFormat).
				Context("column", name).
				Build()
		}
		fields[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
		columns[i] = arr
	}

	tbl, err := New(fields, columns)
	if err != nil {
		for _, c := range columns {
			c.Release()
		}
		return nil, err
	}
	return tbl, nil
}

func uniqueNames(names []string) []string {
	taken := make(map[string]bool, len(names))
	for _, name := range names {
		taken[name] = true
	}

	out := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if !seen[name] {
			seen[name] = true
			out[i] = name
			continue
		}
		candidate := name
		for n := 1; taken[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", name, n)
		}
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}

// representable range of a nanosecond timestamp
var (
	minTime = time.Unix(0, math.MinInt64).UTC()
	maxTime = time.Unix(0, math.MaxInt64).UTC()
)

// checkTime rejects driver-converted times that cannot be stored. The
// sqlite3 driver turns unparseable text in DATE, DATETIME and TIMESTAMP
// columns into the zero time without reporting an error.
func checkTime(t time.Time) error {
	if t.IsZero() {
		return errors.NewStd("cannot parse value as datetime")
	}
	if t.Before(minTime) || t.After(maxTime) {
		return fmt.Errorf("datetime %s is outside the nanosecond timestamp range", t.UTC().Format(time.RFC3339))
	}
	return nil
}

func timeValueError(column string, row int, cause error) error {
	return errors.Newf("column %q row %d: %w", column, row, cause).
		Component("table").
		Category(errors.CategoryDataFormat).
		Context("column", column).
		Context("row", row).
		Build()
}

type valueKind uint8

const (
	kindInt valueKind = 1 << iota
	kindFloat
	kindBool
	kindString
	kindBytes
	kindTime
	kindOther
)

func classify(v any) valueKind {
	switch v.(type) {
	case int64, int32, int, int16, int8, uint8, uint16, uint32:
		return kindInt
	case float64, float32:
		return kindFloat
	case bool:
		return kindBool
	case string:
		return kindString
	case []byte:
		return kindBytes
	case time.Time:
		return kindTime
	default:
		return kindOther
	}
}

func inferType(values []any, declared string) arrow.DataType {
	var kinds valueKind
	for _, v := range values {
		if v != nil {
			kinds |= classify(v)
		}
	}

	switch kinds {
	case 0:
		return declaredType(declared)
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat, kindInt | kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	case kindTime:
		return TimestampType
	case kindBytes:
		if isTextType(declared) {
			return arrow.BinaryTypes.String
		}
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

// declaredType maps SQLite type affinity rules onto arrow types.
func declaredType(declared string) arrow.DataType {
	d := strings.ToUpper(declared)
	switch {
	case strings.Contains(d, "INT"):
		return arrow.PrimitiveTypes.Int64
	case strings.Contains(d, "DATE"), strings.Contains(d, "TIME"):
		return TimestampType
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"),
		strings.Contains(d, "NUMERIC"), strings.Contains(d, "DECIMAL"):
		return arrow.PrimitiveTypes.Float64
	case strings.Contains(d, "BOOL"):
		return arrow.FixedWidthTypes.Boolean
	case d == "BLOB":
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

func isTextType(declared string) bool {
	d := strings.ToUpper(declared)
	return d == "" || strings.Contains(d, "CHAR") || strings.Contains(d, "CLOB") || strings.Contains(d, "TEXT")
}

func buildArray(mem memory.Allocator, dt arrow.DataType, values []any) (arrow.Array, error) {
	switch dt.ID() {
	case arrow.INT64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		b.Reserve(len(values))
		for _, v := range values {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(toInt64(v))
		}
		return b.NewArray(), nil

	case arrow.FLOAT64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.Reserve(len(values))
		for _, v := range values {
			if v == nil {
				b.AppendNull()
				continue
			}
			switch n := v.(type) {
			case float64:
				b.Append(n)
			case float32:
				b.Append(float64(n))
			default:
				b.Append(float64(toInt64(v)))
			}
		}
		return b.NewArray(), nil

	case arrow.BOOL:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		for _, v := range values {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(v.(bool))
		}
		return b.NewArray(), nil

	case arrow.TIMESTAMP:
		b := array.NewTimestampBuilder(mem, dt.(*arrow.TimestampType))
		defer b.Release()
		for _, v := range values {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(arrow.Timestamp(v.(time.Time).UTC().UnixNano()))
		}
		return b.NewArray(), nil

	case arrow.BINARY:
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		defer b.Release()
		for _, v := range values {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(v.([]byte))
		}
		return b.NewArray(), nil

	case arrow.STRING:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for _, v := range values {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(stringify(v))
		}
		return b.NewArray(), nil
	}

	return nil, fmt.Errorf("unsupported column type %s", dt)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	}
	return 0
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return formatTime(s)
	default:
		return fmt.Sprint(v)
	}
}
