package query

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Evaluator compiles and evaluates SQL-style expressions for computed
// columns and residual predicates.
//
// An Evaluator is owned by a single statement. Compiled programs are cached
// by expression text; nothing is shared between evaluators.
type Evaluator struct {
	cache map[string]*Expression
}

// NewEvaluator creates an evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*Expression)}
}

// Expression is a compiled expression.
type Expression struct {
	Source     string // expression as written
	Normalized string // expression as handed to CEL

	bindings []binding
	program  cel.Program

	// wide is set when the expression holds an integer literal a double
	// cannot represent.
	wide     bool
	known    []string
	env      *cel.Env
	exact    cel.Program
	exactErr error
}

// Compile normalizes and compiles an expression. known lists column names
// that may appear unquoted even though they are not valid identifiers.
func (e *Evaluator) Compile(expr string, known ...string) (*Expression, error) {
	cacheKey := expr + "\x00" + strings.Join(known, "\x00")
	if cached, ok := e.cache[cacheKey]; ok {
		return cached, nil
	}

	n, normalized, err := normalize(expr, known, false)
	if err != nil {
		return nil, expressionError(expr, err)
	}
	bindings := n.bindings

	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	opts = append(opts, sqlFunctions()...)
	for _, b := range bindings {
		opts = append(opts, cel.Variable(b.Ident, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, expressionError(expr, err)
	}

	ast, issues := env.Compile(normalized)
	if issues != nil && issues.Err() != nil {
		return nil, expressionError(expr, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, expressionError(expr, err)
	}

	compiled := &Expression{
		Source:     expr,
		Normalized: normalized,
		bindings:   bindings,
		program:    program,
		wide:       n.wide,
		known:      known,
		env:        env,
	}
	e.cache[cacheKey] = compiled
	return compiled, nil
}

// Variables returns the column names the expression reads.
func (x *Expression) Variables() []string {
	names := make([]string, len(x.bindings))
	for i, b := range x.bindings {
		names[i] = b.Column
	}
	return names
}

// Eval evaluates the expression, reading column values through get.
//
// Numbers are evaluated as doubles. When a bound integer or an integer
// literal lies beyond 2^53 the expression switches to integer arithmetic
// so large keys compare exactly. An operator that has no overload for a
// null operand yields null.
func (x *Expression) Eval(get func(name string) (interface{}, error)) (interface{}, error) {
	values := make([]interface{}, len(x.bindings))
	exact, nulls := x.wide, false
	for i, b := range x.bindings {
		v, err := get(b.Column)
		if err != nil {
			return nil, err
		}
		if v == nil {
			nulls = true
		} else if n, ok := toInt64(v); ok && !safeInteger(n) {
			exact = true
		}
		values[i] = v
	}

	program := x.program
	if exact {
		if p, err := x.exactProgram(); err == nil {
			program = p
		} else {
			exact = false
		}
	}
	activation := make(map[string]interface{}, len(x.bindings))
	for i, b := range x.bindings {
		activation[b.Ident] = toCEL(values[i], exact)
	}

	out, _, err := program.Eval(activation)
	if err != nil {
		if nulls && strings.Contains(err.Error(), "no such overload") {
			return nil, nil
		}
		return nil, expressionError(x.Source, err)
	}
	return fromCEL(out)
}

// exactProgram compiles the integer-preserving variant on first use.
func (x *Expression) exactProgram() (cel.Program, error) {
	if x.exact != nil || x.exactErr != nil {
		return x.exact, x.exactErr
	}
	_, normalized, err := normalize(x.Source, x.known, true)
	if err != nil {
		x.exactErr = err
		return nil, err
	}
	ast, issues := x.env.Compile(normalized)
	if issues != nil && issues.Err() != nil {
		x.exactErr = issues.Err()
		return nil, x.exactErr
	}
	x.exact, x.exactErr = x.env.Program(ast)
	return x.exact, x.exactErr
}

// Test evaluates the expression as a predicate. Null counts as false; any
// other non-boolean result is an error.
func (x *Expression) Test(get func(name string) (interface{}, error)) (bool, error) {
	v, err := x.Eval(get)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	default:
		return false, expressionError(x.Source, fmt.Errorf("expected a boolean result, got %T", v))
	}
}

// EvalMap evaluates the expression against a plain row map.
func (x *Expression) EvalMap(row map[string]interface{}) (interface{}, error) {
	return x.Eval(func(name string) (interface{}, error) { return row[name], nil })
}

// ExpressionPredicate adapts a compiled expression to a row predicate.
func ExpressionPredicate(x *Expression) Predicate {
	return PredicateFunc(func(c Cursor) (bool, error) {
		return x.Test(c.ValueByName)
	})
}

// toCEL binds numbers as doubles so expressions never mix int and double
// arithmetic. With exact set integers stay int64.
func toCEL(v interface{}, exact bool) interface{} {
	if exact {
		if i, ok := toInt64(v); ok {
			return i
		}
	}
	if f, ok := toFloat64(v); ok {
		return f
	}
	return v
}

// fromCEL converts a CEL result to a plain Go value. Integral doubles map
// back to int64.
func fromCEL(out ref.Val) (interface{}, error) {
	switch v := out.(type) {
	case types.Null:
		return nil, nil
	case types.Double:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	case types.Int:
		return int64(v), nil
	case types.Uint:
		return int64(v), nil
	case types.String:
		return string(v), nil
	case types.Bool:
		return bool(v), nil
	case types.Bytes:
		return []byte(v), nil
	}
	if out.Type() == types.ListType {
		native, err := out.ConvertToNative(reflect.TypeOf([]interface{}{}))
		if err != nil {
			return nil, err
		}
		return native, nil
	}
	if out.Type() == types.MapType {
		native, err := out.ConvertToNative(reflect.TypeOf(map[string]interface{}{}))
		if err != nil {
			return nil, err
		}
		return native, nil
	}
	return out.Value(), nil
}
