package query

import (
	"fmt"
	"math"
	"strings"
)

// Operator is a predicate operator.
type Operator int

const (
	OpEQ Operator = iota
	OpNE
	OpGT
	OpGE
	OpLT
	OpLE
	OpBetween
	OpIn
	OpAnd
	OpOr
)

// String implements fmt.Stringer
func (op Operator) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpNE:
		return "!="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpBetween:
		return "BETWEEN"
	case OpIn:
		return "IN"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

// ColumnRef is an operand that refers to a column of another row instead of
// a literal. Join conditions use it to reference the current outer row; it
// is resolved before planning.
type ColumnRef struct {
	Name string
}

// Condition is a node of the predicate tree.
//
// Leaf conditions compare Column (of Table, empty for the statement's main
// table) against Values. AND and OR nodes only carry Operands; they are
// structural markers consumed by the planner.
type Condition struct {
	Operator Operator
	Table    string
	Column   string
	Values   []interface{}
	Operands []*Condition
}

// Eq builds `column = v`.
func Eq(column string, v interface{}) *Condition {
	return &Condition{Operator: OpEQ, Column: column, Values: []interface{}{v}}
}

// Ne builds `column != v`.
func Ne(column string, v interface{}) *Condition {
	return &Condition{Operator: OpNE, Column: column, Values: []interface{}{v}}
}

// Gt builds `column > v`.
func Gt(column string, v interface{}) *Condition {
	return &Condition{Operator: OpGT, Column: column, Values: []interface{}{v}}
}

// Ge builds `column >= v`.
func Ge(column string, v interface{}) *Condition {
	return &Condition{Operator: OpGE, Column: column, Values: []interface{}{v}}
}

// Lt builds `column < v`.
func Lt(column string, v interface{}) *Condition {
	return &Condition{Operator: OpLT, Column: column, Values: []interface{}{v}}
}

// Le builds `column <= v`.
func Le(column string, v interface{}) *Condition {
	return &Condition{Operator: OpLE, Column: column, Values: []interface{}{v}}
}

// Between builds `column BETWEEN lo AND hi`.
func Between(column string, lo, hi interface{}) *Condition {
	return &Condition{Operator: OpBetween, Column: column, Values: []interface{}{lo, hi}}
}

// In builds `column IN (values...)`.
func In(column string, values ...interface{}) *Condition {
	return &Condition{Operator: OpIn, Column: column, Values: values}
}

// And builds a conjunction.
func And(operands ...*Condition) *Condition {
	return &Condition{Operator: OpAnd, Operands: operands}
}

// Or builds a disjunction.
func Or(operands ...*Condition) *Condition {
	return &Condition{Operator: OpOr, Operands: operands}
}

// Of sets the owning table (alias) of a leaf condition.
func (c *Condition) Of(table string) *Condition {
	c.Table = table
	return c
}

// String renders the condition in SQL-like form.
func (c *Condition) String() string {
	switch c.Operator {
	case OpAnd, OpOr:
		parts := make([]string, len(c.Operands))
		for i, o := range c.Operands {
			parts[i] = o.String()
		}
		return "(" + strings.Join(parts, " "+c.Operator.String()+" ") + ")"
	}

	name := c.Column
	if c.Table != "" {
		name = c.Table + "." + c.Column
	}
	switch c.Operator {
	case OpBetween:
		return fmt.Sprintf("%s BETWEEN %s AND %s", name, formatOperand(c.value(0)), formatOperand(c.value(1)))
	case OpIn:
		vals := make([]string, len(c.Values))
		for i, v := range c.Values {
			vals[i] = formatOperand(v)
		}
		return fmt.Sprintf("%s IN (%s)", name, strings.Join(vals, ", "))
	default:
		return fmt.Sprintf("%s %s %s", name, c.Operator, formatOperand(c.value(0)))
	}
}

func (c *Condition) value(i int) interface{} {
	if i < len(c.Values) {
		return c.Values[i]
	}
	return nil
}

func formatOperand(v interface{}) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case ColumnRef:
		return val.Name
	case int64:
		switch val {
		case math.MinInt64:
			return "MIN"
		case math.MaxInt64:
			return "MAX"
		}
		return fmt.Sprint(val)
	default:
		return fmt.Sprint(val)
	}
}

// validate checks the shape of a condition tree.
func (c *Condition) validate() error {
	if c == nil {
		return nil
	}
	switch c.Operator {
	case OpAnd, OpOr:
		if len(c.Operands) == 0 {
			return invalidStatement("%s without operands", c.Operator)
		}
		for _, o := range c.Operands {
			if err := o.validate(); err != nil {
				return err
			}
		}
		return nil
	case OpBetween:
		if len(c.Values) != 2 {
			return invalidStatement("BETWEEN on %q needs 2 values, got %d", c.Column, len(c.Values))
		}
	case OpIn:
		if len(c.Values) == 0 {
			return invalidStatement("IN on %q without values", c.Column)
		}
	default:
		if len(c.Values) != 1 {
			return invalidStatement("%s on %q needs 1 value, got %d", c.Operator, c.Column, len(c.Values))
		}
	}
	if c.Column == "" {
		return invalidStatement("%s without a column", c.Operator)
	}
	return nil
}

// resolve returns a copy of the tree with every ColumnRef operand replaced
// by the value lookup returns for it.
func (c *Condition) resolve(lookup func(name string) (interface{}, error)) (*Condition, error) {
	if c == nil {
		return nil, nil
	}
	out := &Condition{Operator: c.Operator, Table: c.Table, Column: c.Column}
	if len(c.Values) > 0 {
		out.Values = make([]interface{}, len(c.Values))
		for i, v := range c.Values {
			if ref, ok := v.(ColumnRef); ok {
				resolved, err := lookup(ref.Name)
				if err != nil {
					return nil, err
				}
				v = resolved
			}
			out.Values[i] = v
		}
	}
	for _, o := range c.Operands {
		r, err := o.resolve(lookup)
		if err != nil {
			return nil, err
		}
		out.Operands = append(out.Operands, r)
	}
	return out, nil
}

// conjuncts flattens nested top-level ANDs in arrival order.
func (c *Condition) conjuncts() []*Condition {
	if c == nil {
		return nil
	}
	if c.Operator != OpAnd {
		return []*Condition{c}
	}
	var out []*Condition
	for _, o := range c.Operands {
		out = append(out, o.conjuncts()...)
	}
	return out
}

// columns returns the distinct qualified column names referenced by the tree.
func (c *Condition) columns() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	var walk func(*Condition)
	walk = func(n *Condition) {
		if n.Operator == OpAnd || n.Operator == OpOr {
			for _, o := range n.Operands {
				walk(o)
			}
			return
		}
		name := n.Column
		if n.Table != "" {
			name = n.Table + "." + n.Column
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	walk(c)
	return out
}

// Match evaluates the condition client-side against a row. Missing columns
// read as null; comparisons against null are false except for NE.
func (c *Condition) Match(get func(table, column string) (interface{}, error)) (bool, error) {
	switch c.Operator {
	case OpAnd:
		for _, o := range c.Operands {
			ok, err := o.Match(get)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case OpOr:
		for _, o := range c.Operands {
			ok, err := o.Match(get)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	v, err := get(c.Table, c.Column)
	if err != nil {
		return false, err
	}
	switch c.Operator {
	case OpBetween:
		lo, err := compare(v, OpGE, c.value(0))
		if err != nil || !lo {
			return false, err
		}
		return compare(v, OpLE, c.value(1))
	case OpIn:
		for _, want := range c.Values {
			ok, err := compare(v, OpEQ, want)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return compare(v, c.Operator, c.value(0))
	}
}
