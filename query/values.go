package query

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// compare compares two values using the given operator.
//
// Numbers compare numerically whatever their Go type, strings and byte
// slices compare lexically. Null is only equal to null. Values of
// unrelated types are never equal and never ordered.
func compare(left interface{}, operator Operator, right interface{}) (bool, error) {
	// Handle nil values
	if left == nil || right == nil {
		switch operator {
		case OpEQ:
			return left == nil && right == nil, nil
		case OpNE:
			return !(left == nil && right == nil), nil
		}
		return false, nil
	}

	leftNum, leftIsNum := toFloat64(left)
	rightNum, rightIsNum := toFloat64(right)
	if leftIsNum && rightIsNum {
		// exact integer comparison avoids float rounding on large keys
		li, lok := toInt64(left)
		ri, rok := toInt64(right)
		if lok && rok {
			return ordered(compareInt64(li, ri), operator)
		}
		return ordered(compareFloat64(leftNum, rightNum), operator)
	}

	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return ordered(compareStrings(ls, rs), operator)
		}
	}

	if lb, ok := left.([]byte); ok {
		if rb, ok := right.([]byte); ok {
			return ordered(bytes.Compare(lb, rb), operator)
		}
	}

	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			return ordered(compareBools(lb, rb), operator)
		}
	}

	// Type mismatch
	switch operator {
	case OpEQ:
		return false, nil
	case OpNE:
		return true, nil
	}
	return false, nil
}

// ordered maps a three-way comparison result onto an operator.
func ordered(cmp int, operator Operator) (bool, error) {
	switch operator {
	case OpEQ:
		return cmp == 0, nil
	case OpNE:
		return cmp != 0, nil
	case OpLT:
		return cmp < 0, nil
	case OpGT:
		return cmp > 0, nil
	case OpLE:
		return cmp <= 0, nil
	case OpGE:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("operator %s is not a comparison", operator)
	}
}

// toFloat64 converts a value to float64 if possible
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

// toInt64 converts an integer value to int64. Floats are rejected.
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	default:
		return 0, false
	}
}

// Float bounds of the int64 range: every float64 f with
// minInt64Float <= f < maxInt64Float converts to int64 without overflow.
const (
	minInt64Float = -(1 << 63)
	maxInt64Float = 1 << 63
)

// safeInteger reports whether a float64 holds i exactly, and so does every
// integer between i and zero.
func safeInteger(i int64) bool {
	return i >= -(1<<53) && i <= 1<<53
}

// integralFloat converts a whole float64 inside the int64 range to int64.
func integralFloat(v interface{}) (int64, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < minInt64Float || f >= maxInt64Float {
		return 0, false
	}
	return int64(f), true
}

func isInteger(v interface{}) bool {
	_, ok := toInt64(v)
	return ok
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// valueKind ranks value families for the ordering comparator. When two
// values of different families are compared, both are converted to the
// higher-ranked family.
type valueKind int

const (
	kindBool valueKind = iota
	kindInt
	kindFloat
	kindString
	kindBytes
)

func kindOf(v interface{}) valueKind {
	switch v.(type) {
	case bool:
		return kindBool
	case float32, float64:
		return kindFloat
	case string:
		return kindString
	case []byte:
		return kindBytes
	}
	if isInteger(v) {
		return kindInt
	}
	return kindString
}

// converters turn any value into the representation of a given kind.
var converters = map[valueKind]func(interface{}) interface{}{
	kindBool: func(v interface{}) interface{} {
		if b, ok := v.(bool); ok {
			return b
		}
		f, _ := toFloat64(v)
		return f != 0
	},
	kindInt: func(v interface{}) interface{} {
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
		i, _ := toInt64(v)
		return i
	},
	kindFloat: func(v interface{}) interface{} {
		if b, ok := v.(bool); ok {
			if b {
				return 1.0
			}
			return 0.0
		}
		f, _ := toFloat64(v)
		return f
	},
	kindString: func(v interface{}) interface{} {
		return stringify(v)
	},
	kindBytes: func(v interface{}) interface{} {
		if b, ok := v.([]byte); ok {
			return b
		}
		return []byte(stringify(v))
	},
}

// compareValues orders two values: null first, then by the common kind of
// both sides.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	kind := kindOf(a)
	if kb := kindOf(b); kb > kind {
		kind = kb
	}
	convert := converters[kind]
	ca, cb := convert(a), convert(b)

	switch kind {
	case kindBool:
		return compareBools(ca.(bool), cb.(bool))
	case kindInt:
		return compareInt64(ca.(int64), cb.(int64))
	case kindFloat:
		return compareFloat64(ca.(float64), cb.(float64))
	case kindBytes:
		return bytes.Compare(ca.([]byte), cb.([]byte))
	default:
		return compareStrings(ca.(string), cb.(string))
	}
}

// stringify renders a value as a plain string.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

// normalizeValue maps Go values onto the store's value domain: integers
// become int64 and float32 becomes float64.
func normalizeValue(v interface{}) interface{} {
	if i, ok := toInt64(v); ok {
		return i
	}
	if f, ok := v.(float32); ok {
		return float64(f)
	}
	return v
}
