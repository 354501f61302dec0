package query

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// String and math functions available to expressions. Names are matched
// case-insensitively by the normalizer.
var sqlFunctionNames = map[string]struct{}{
	"upper": {}, "lower": {}, "trim": {}, "ltrim": {}, "rtrim": {},
	"length": {}, "reverse": {},
	"abs": {}, "round": {}, "floor": {}, "ceil": {}, "sqrt": {},
	"sign": {}, "trunc": {}, "pow": {}, "mod": {},
}

func stringFunc(name string, fn func(string) string) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_string", []*cel.Type{cel.StringType}, cel.StringType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				s, ok := v.(types.String)
				if !ok {
					return types.MaybeNoSuchOverloadErr(v)
				}
				return types.String(fn(string(s)))
			})))
}

// mathFunc declares a double overload and an int overload. Integers go
// through intFn when it is set and through fn as doubles otherwise.
func mathFunc(name string, fn func(float64) float64, intFn func(int64) (int64, bool)) cel.EnvOption {
	intResult := cel.IntType
	if intFn == nil {
		intResult = cel.DoubleType
	}
	return cel.Function(name,
		cel.Overload(name+"_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				f, ok := v.(types.Double)
				if !ok {
					return types.MaybeNoSuchOverloadErr(v)
				}
				return types.Double(fn(float64(f)))
			})),
		cel.Overload(name+"_int", []*cel.Type{cel.IntType}, intResult,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				i, ok := v.(types.Int)
				if !ok {
					return types.MaybeNoSuchOverloadErr(v)
				}
				if intFn == nil {
					return types.Double(fn(float64(i)))
				}
				out, ok := intFn(int64(i))
				if !ok {
					return types.NewErr("%s: integer overflow for %d", name, int64(i))
				}
				return types.Int(out)
			})))
}

func mathFunc2(name string, fn func(a, b float64) (float64, bool), intFn func(a, b int64) (int64, bool)) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
			cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
				a, ok1 := lhs.(types.Double)
				b, ok2 := rhs.(types.Double)
				if !ok1 || !ok2 {
					return types.MaybeNoSuchOverloadErr(lhs)
				}
				out, ok := fn(float64(a), float64(b))
				if !ok {
					return types.NewErr("%s: invalid arguments %v, %v", name, a, b)
				}
				return types.Double(out)
			})),
		cel.Overload(name+"_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.IntType,
			cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
				a, ok1 := lhs.(types.Int)
				b, ok2 := rhs.(types.Int)
				if !ok1 || !ok2 {
					return types.MaybeNoSuchOverloadErr(lhs)
				}
				out, ok := intFn(int64(a), int64(b))
				if !ok {
					return types.NewErr("%s: invalid arguments %d, %d", name, a, b)
				}
				return types.Int(out)
			})))
}

func identity(i int64) (int64, bool) { return i, true }

// sqlFunctions declares the scalar function library.
func sqlFunctions() []cel.EnvOption {
	return []cel.EnvOption{
		stringFunc("upper", strings.ToUpper),
		stringFunc("lower", strings.ToLower),
		stringFunc("trim", strings.TrimSpace),
		stringFunc("ltrim", func(s string) string { return strings.TrimLeft(s, " \t\n\r") }),
		stringFunc("rtrim", func(s string) string { return strings.TrimRight(s, " \t\n\r") }),
		stringFunc("reverse", func(s string) string {
			runes := []rune(s)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes)
		}),
		cel.Function("length",
			cel.Overload("length_string", []*cel.Type{cel.StringType}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					s, ok := v.(types.String)
					if !ok {
						return types.MaybeNoSuchOverloadErr(v)
					}
					return types.Double(utf8.RuneCountInString(string(s)))
				}))),
		mathFunc("abs", math.Abs, func(i int64) (int64, bool) {
			if i == math.MinInt64 {
				return 0, false
			}
			if i < 0 {
				return -i, true
			}
			return i, true
		}),
		mathFunc("round", math.Round, identity),
		mathFunc("floor", math.Floor, identity),
		mathFunc("ceil", math.Ceil, identity),
		mathFunc("trunc", math.Trunc, identity),
		mathFunc("sqrt", math.Sqrt, nil),
		mathFunc("sign", func(f float64) float64 {
			switch {
			case f > 0:
				return 1
			case f < 0:
				return -1
			}
			return 0
		}, func(i int64) (int64, bool) {
			switch {
			case i > 0:
				return 1, true
			case i < 0:
				return -1, true
			}
			return 0, true
		}),
		mathFunc2("pow", func(a, b float64) (float64, bool) { return math.Pow(a, b), true },
			func(a, b int64) (int64, bool) {
				switch {
				case b < 0:
					return 0, false
				case a == 0 || a == 1:
					if b == 0 {
						return 1, true
					}
					return a, true
				case a == -1:
					if b%2 == 0 {
						return 1, true
					}
					return -1, true
				}
				out := int64(1)
				for ; b > 0; b-- {
					next := out * a
					if a != 0 && next/a != out {
						return 0, false
					}
					out = next
				}
				return out, true
			}),
		mathFunc2("mod", func(a, b float64) (float64, bool) {
			if b == 0 {
				return 0, false
			}
			return math.Mod(a, b), true
		}, func(a, b int64) (int64, bool) {
			if b == 0 {
				return 0, false
			}
			if b == -1 {
				return 0, true
			}
			return a % b, true
		}),
	}
}
