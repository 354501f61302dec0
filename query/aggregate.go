package query

import (
	"fmt"
	"regexp"
	"strings"
)

// aggregatePattern extracts the function name and its single argument from
// an aggregate column, e.g. "sum(v)" or "count(*)".
var aggregatePattern = regexp.MustCompile(`^\s*(\w+)\s*\(\s*(\w+|\*)\s*\)`)

// parseAggregate splits an aggregate expression into function and argument.
func parseAggregate(expr string) (function, arg string, err error) {
	m := aggregatePattern.FindStringSubmatch(expr)
	if m == nil {
		return "", "", invalidStatement("%q is not an aggregate function call", expr)
	}
	function = strings.ToLower(m[1])
	if _, ok := aggregates[function]; !ok {
		return "", "", invalidStatement("unknown aggregate function: %s", m[1])
	}
	return function, m[2], nil
}

// accumulator folds the values of one aggregate column within one group.
type accumulator interface {
	fold(v interface{}) error
	result() interface{}
}

var aggregates = map[string]func(name string) accumulator{
	"count":  func(string) accumulator { return &countAcc{} },
	"sum":    func(name string) accumulator { return &sumAcc{name: name} },
	"avg":    func(name string) accumulator { return &avgAcc{name: name} },
	"min":    func(string) accumulator { return &extremeAcc{sign: -1} },
	"max":    func(string) accumulator { return &extremeAcc{sign: 1} },
	"sumsqs": func(name string) accumulator { return &sumsqsAcc{name: name} },
}

// countAcc counts rows: count(prev, _) = prev + 1.
type countAcc struct {
	n int64
}

func (a *countAcc) fold(interface{}) error { a.n++; return nil }
func (a *countAcc) result() interface{}    { return a.n }

// sumAcc: sum(prev, v) = prev + v. Integers stay int64 until a double shows up.
type sumAcc struct {
	name string
	sum  interface{}
}

func (a *sumAcc) fold(v interface{}) error {
	if v == nil {
		return nil
	}
	next, err := addNumbers(a.name, a.sum, v)
	if err != nil {
		return err
	}
	a.sum = next
	return nil
}

func (a *sumAcc) result() interface{} { return a.sum }

// avgAcc keeps a running count and sum and recomputes the mean.
type avgAcc struct {
	name  string
	count int64
	sum   float64
}

func (a *avgAcc) fold(v interface{}) error {
	if v == nil {
		return nil
	}
	f, ok := toFloat64(v)
	if !ok {
		return notNumeric(a.name, v)
	}
	a.count++
	a.sum += f
	return nil
}

func (a *avgAcc) result() interface{} {
	if a.count == 0 {
		return nil
	}
	return a.sum / float64(a.count)
}

// extremeAcc implements min (sign -1) and max (sign 1). The first value
// wins when nothing was folded before.
type extremeAcc struct {
	sign  int
	value interface{}
}

func (a *extremeAcc) fold(v interface{}) error {
	if v == nil {
		return nil
	}
	v = normalizeValue(v)
	if a.value == nil || compareValues(v, a.value)*a.sign > 0 {
		a.value = v
	}
	return nil
}

func (a *extremeAcc) result() interface{} { return a.value }

// sumsqsAcc: sumsqs(prev, v) = prev + v*v.
type sumsqsAcc struct {
	name string
	sum  interface{}
}

func (a *sumsqsAcc) fold(v interface{}) error {
	if v == nil {
		return nil
	}
	var sq interface{}
	if i, ok := toInt64(v); ok {
		sq = i * i
	} else if f, ok := toFloat64(v); ok {
		sq = f * f
	} else {
		return notNumeric(a.name, v)
	}
	next, err := addNumbers(a.name, a.sum, sq)
	if err != nil {
		return err
	}
	a.sum = next
	return nil
}

func (a *sumsqsAcc) result() interface{} { return a.sum }

func addNumbers(name string, prev, v interface{}) (interface{}, error) {
	if _, ok := toFloat64(v); !ok {
		return nil, notNumeric(name, v)
	}
	if prev == nil {
		return normalizeValue(v), nil
	}
	pi, pok := toInt64(prev)
	vi, vok := toInt64(v)
	if pok && vok {
		return pi + vi, nil
	}
	pf, _ := toFloat64(prev)
	vf, _ := toFloat64(v)
	return pf + vf, nil
}

func notNumeric(name string, v interface{}) error {
	return typeConflict("%s: %T value %v is not numeric", name, v, v)
}

// aggregateSpec is a parsed aggregate output column.
type aggregateSpec struct {
	column   *Column
	function string
	arg      string
}

// group is the accumulator state of one group key.
type group struct {
	keys []interface{}
	accs []accumulator
}

// AggregatingCursor groups the rows of its inner cursor by the GROUP
// columns and folds the AGGREGATED columns. It reads the whole input on
// first use and emits one row per group in first-seen order, with values in
// the order of the output columns.
type AggregatingCursor struct {
	inner   Cursor
	columns []*Column
	groups  []*Column
	specs   []aggregateSpec
	having  *Expression
	result  *ListCursor
	err     error
}

// NewAggregatingCursor creates an aggregation over inner. columns lists the
// output columns in the caller's order; each must have the GROUP or the
// AGGREGATED role.
func NewAggregatingCursor(inner Cursor, columns []*Column) (*AggregatingCursor, error) {
	a := &AggregatingCursor{inner: inner, columns: columns}
	for _, c := range columns {
		switch c.Role {
		case RoleGroup:
			a.groups = append(a.groups, c)
		case RoleAggregated:
			function, arg, err := parseAggregate(c.Name)
			if err != nil {
				return nil, err
			}
			a.specs = append(a.specs, aggregateSpec{column: c, function: function, arg: arg})
		default:
			return nil, invalidStatement("column %q must appear in GROUP BY or be used in an aggregate function", c.OutputName())
		}
	}
	return a, nil
}

// Having filters aggregated rows with a compiled expression.
func (a *AggregatingCursor) Having(x *Expression) *AggregatingCursor {
	a.having = x
	return a
}

func (a *AggregatingCursor) fail(err error) error {
	if a.err == nil {
		a.err = err
	}
	return a.err
}

// materialize folds the whole input once.
func (a *AggregatingCursor) materialize() error {
	if a.err != nil {
		return a.err
	}
	if a.result != nil {
		return nil
	}

	groups := make(map[string]*group)
	var order []*group

	for {
		ok, err := a.inner.Next()
		if err != nil {
			return a.fail(err)
		}
		if !ok {
			break
		}

		keys := make([]interface{}, len(a.groups))
		for i, c := range a.groups {
			if keys[i], err = a.inner.ValueByName(c.Name); err != nil {
				return a.fail(err)
			}
		}
		key := rowKey(keys)
		g, exists := groups[key]
		if !exists {
			g = a.newGroup(keys)
			groups[key] = g
			order = append(order, g)
		}

		for i, spec := range a.specs {
			var v interface{}
			if spec.arg == "*" {
				v = int64(0)
			} else if v, err = a.inner.ValueByName(spec.arg); err != nil {
				return a.fail(err)
			}
			if err := g.accs[i].fold(v); err != nil {
				return a.fail(err)
			}
			spec.column.WidenType(TypeOf(g.accs[i].result()))
		}
	}

	// aggregates without GROUP BY return one row even for empty input
	if len(a.groups) == 0 && len(order) == 0 {
		order = append(order, a.newGroup(nil))
	}

	rows := make([]Row, 0, len(order))
	for _, g := range order {
		row := a.assemble(g)
		if a.having != nil {
			ok, err := a.having.Test(a.rowGetter(row))
			if err != nil {
				return a.fail(err)
			}
			if !ok {
				continue
			}
		}
		rows = append(rows, row)
	}
	a.result = NewListCursor(a.columns, rows)
	return nil
}

func (a *AggregatingCursor) newGroup(keys []interface{}) *group {
	g := &group{keys: keys, accs: make([]accumulator, len(a.specs))}
	for i, spec := range a.specs {
		g.accs[i] = aggregates[spec.function](spec.column.Name)
	}
	for i, c := range a.groups {
		if i < len(keys) {
			c.WidenType(TypeOf(keys[i]))
		}
	}
	return g
}

// assemble interleaves group values and aggregate results in output order.
func (a *AggregatingCursor) assemble(g *group) Row {
	row := make(Row, len(a.columns))
	gi, si := 0, 0
	for i, c := range a.columns {
		if c.Role == RoleGroup {
			if gi < len(g.keys) {
				row[i] = g.keys[gi]
			}
			gi++
			continue
		}
		row[i] = g.accs[si].result()
		si++
	}
	return row
}

func (a *AggregatingCursor) rowGetter(row Row) func(string) (interface{}, error) {
	return func(name string) (interface{}, error) {
		if c := findColumn(a.columns, name); c != nil {
			for i, col := range a.columns {
				if col == c {
					return row[i], nil
				}
			}
		}
		return nil, nil
	}
}

// Next implements Cursor
func (a *AggregatingCursor) Next() (bool, error) {
	if err := a.materialize(); err != nil {
		return false, err
	}
	return a.result.Next()
}

// IsLast implements LastAware
func (a *AggregatingCursor) IsLast() (bool, error) {
	if err := a.materialize(); err != nil {
		return false, err
	}
	return a.result.IsLast()
}

// Value implements Cursor
func (a *AggregatingCursor) Value(index int) (interface{}, error) {
	if err := a.materialize(); err != nil {
		return nil, err
	}
	return a.result.Value(index)
}

// ValueByName implements Cursor
func (a *AggregatingCursor) ValueByName(name string) (interface{}, error) {
	if err := a.materialize(); err != nil {
		return nil, err
	}
	return a.result.ValueByName(name)
}

func (a *AggregatingCursor) lookup(name string) (interface{}, bool, error) {
	if err := a.materialize(); err != nil {
		return nil, false, err
	}
	return a.result.lookup(name)
}

// Metadata implements Cursor. Aggregate types are only known after
// folding, so this reads the input.
func (a *AggregatingCursor) Metadata() ([]*Column, error) {
	if err := a.materialize(); err != nil {
		return nil, err
	}
	return a.columns, nil
}

// Reset implements Cursor. The folded result is replayed.
func (a *AggregatingCursor) Reset() error {
	if a.err != nil {
		return a.err
	}
	if a.result != nil {
		return a.result.Reset()
	}
	return nil
}

// Close implements Cursor
func (a *AggregatingCursor) Close() error {
	return a.inner.Close()
}

// String implements fmt.Stringer
func (a *AggregatingCursor) String() string {
	names := make([]string, len(a.columns))
	for i, c := range a.columns {
		names[i] = c.OutputName()
	}
	return fmt.Sprintf("Aggregate(%s)", strings.Join(names, ", "))
}
