// Package datetime converts table columns to UTC nanosecond timestamps.
package datetime

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/tphakala/wildfire-loader/internal/errors"
)

// layouts are tried in order. Layouts without a zone parse as UTC. A
// fractional second after the seconds field is accepted by every layout
// that has one.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.DateOnly,
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// representable range of a nanosecond timestamp
var (
	minTime = time.Unix(0, math.MinInt64).UTC()
	maxTime = time.Unix(0, math.MaxInt64).UTC()
)

// ParseString parses s with the first matching layout and returns it in UTC.
func ParseString(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, v, time.UTC)
		if err != nil {
			continue
		}
		if t.Before(minTime) || t.After(maxTime) {
			return time.Time{}, fmt.Errorf("datetime %q is outside the nanosecond timestamp range", s)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as datetime", s)
}

// convertRange converts rows [lo, hi) of arr into out and valid, which are
// indexed by absolute row. It stops at the first failing row.
func convertRange(column string, arr arrow.Array, lo, hi int, out []arrow.Timestamp, valid []bool) error {
	switch a := arr.(type) {
	case *array.String:
		return convertStrings(column, a.Value, a.IsNull, lo, hi, out, valid)
	case *array.LargeString:
		return convertStrings(column, a.Value, a.IsNull, lo, hi, out, valid)

	case *array.Int64:
		for i := lo; i < hi; i++ {
			if a.IsNull(i) {
				continue
			}
			out[i], valid[i] = arrow.Timestamp(a.Value(i)), true
		}
		return nil

	case *array.Float64:
		for i := lo; i < hi; i++ {
			if a.IsNull(i) {
				continue
			}
			f := a.Value(i)
			if math.IsNaN(f) {
				continue
			}
			if math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
				return valueError(column, i, fmt.Errorf("epoch value %v is outside the nanosecond timestamp range", f))
			}
			out[i], valid[i] = arrow.Timestamp(int64(f)), true
		}
		return nil

	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		for i := lo; i < hi; i++ {
			if a.IsNull(i) {
				continue
			}
			t := a.Value(i).ToTime(unit)
			if t.Before(minTime) || t.After(maxTime) {
				return valueError(column, i, fmt.Errorf("timestamp %s is outside the nanosecond timestamp range", t))
			}
			out[i], valid[i] = arrow.Timestamp(t.UnixNano()), true
		}
		return nil

	default:
		for i := lo; i < hi; i++ {
			if arr.IsNull(i) {
				continue
			}
			return valueError(column, i, fmt.Errorf("cannot convert %s value %s to datetime", arr.DataType(), arr.ValueStr(i)))
		}
		return nil
	}
}

func convertStrings(column string, value func(int) string, isNull func(int) bool, lo, hi int, out []arrow.Timestamp, valid []bool) error {
	for i := lo; i < hi; i++ {
		if isNull(i) {
			continue
		}
		s := value(i)
		if strings.TrimSpace(s) == "" {
			continue
		}
		t, err := ParseString(s)
		if err != nil {
			return valueError(column, i, err)
		}
		out[i], valid[i] = arrow.Timestamp(t.UnixNano()), true
	}
	return nil
}

// valueError reports an unconvertible value. The message names the column
// and row so both execution paths fail identically.
func valueError(column string, row int, cause error) error {
	return errors.Newf("column %q row %d: %w", column, row, cause).
		Component("datetime").
		Category(errors.CategoryDataFormat).
		Context("column", column).
		Context("row", row).
		Build()
}
