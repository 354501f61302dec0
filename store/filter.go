package store

import (
	"fmt"
	"math"
)

// FilterKind distinguishes the two secondary-index predicates a store accepts.
type FilterKind int

const (
	FilterEqual FilterKind = iota
	FilterRange
)

// Filter is a single secondary-index predicate.
//
// Filters are only built through EqualFilter and RangeFilter, which record
// the inputs used to construct them so callers never need to read them back
// out of an opaque type.
type Filter struct {
	kind  FilterKind
	bin   string
	value interface{}
	begin int64
	end   int64
}

// EqualFilter matches records whose bin equals value.
// Value must be an int64 or a string.
func EqualFilter(bin string, value interface{}) (*Filter, error) {
	switch value.(type) {
	case int64, string:
	default:
		return nil, fmt.Errorf("equal filter on %q: unsupported value type %T", bin, value)
	}
	return &Filter{kind: FilterEqual, bin: bin, value: value}, nil
}

// RangeFilter matches records whose numeric bin lies in [begin, end].
// Integer bins compare exactly; double bins compare against the real
// interval, so 82.5 lies in [82, 83] but not in [83, MAX].
func RangeFilter(bin string, begin, end int64) *Filter {
	return &Filter{kind: FilterRange, bin: bin, begin: begin, end: end}
}

// Kind returns the filter kind.
func (f *Filter) Kind() FilterKind { return f.kind }

// Bin returns the filtered bin name.
func (f *Filter) Bin() string { return f.bin }

// Value returns the equality operand. Only meaningful for FilterEqual.
func (f *Filter) Value() interface{} { return f.value }

// Range returns the inclusive range bounds. Only meaningful for FilterRange.
func (f *Filter) Range() (begin, end int64) { return f.begin, f.end }

// Matches reports whether a bin value satisfies the filter.
func (f *Filter) Matches(v interface{}) bool {
	switch f.kind {
	case FilterEqual:
		switch want := f.value.(type) {
		case string:
			s, ok := v.(string)
			return ok && s == want
		case int64:
			n, ok := asInt64(v)
			return ok && n == want
		}
		return false
	case FilterRange:
		switch n := v.(type) {
		case float64:
			return n >= float64(f.begin) && n <= float64(f.end)
		case float32:
			return float64(n) >= float64(f.begin) && float64(n) <= float64(f.end)
		}
		i, ok := asInt64(v)
		return ok && i >= f.begin && i <= f.end
	}
	return false
}

// String implements fmt.Stringer
func (f *Filter) String() string {
	if f.kind == FilterEqual {
		return fmt.Sprintf("%s = %v", f.bin, f.value)
	}
	lo, hi := fmt.Sprint(f.begin), fmt.Sprint(f.end)
	if f.begin == math.MinInt64 {
		lo = "MIN"
	}
	if f.end == math.MaxInt64 {
		hi = "MAX"
	}
	return fmt.Sprintf("%s BETWEEN %s AND %s", f.bin, lo, hi)
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}
