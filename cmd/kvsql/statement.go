package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/vegasq/kvsql/query"
)

// document is the JSON form of one request: exactly one of Select, Union,
// Insert or Update is set.
type document struct {
	Select *selectSpec `json:"select"`
	Union  *unionSpec  `json:"union"`
	Insert *insertSpec `json:"insert"`
	Update *updateSpec `json:"update"`
}

type selectSpec struct {
	Namespace string         `json:"namespace"`
	Table     string         `json:"table"`
	Alias     string         `json:"alias"`
	Columns   []columnSpec   `json:"columns"`
	Where     *conditionSpec `json:"where"`
	Filter    string         `json:"filter"`
	Joins     []joinSpec     `json:"joins"`
	Having    string         `json:"having"`
	Distinct  bool           `json:"distinct"`
	OrderBy   []orderSpec    `json:"order_by"`
	Offset    int64          `json:"offset"`
	Limit     int64          `json:"limit"`
}

// columnSpec sets one of Name, Expr, Agg or Group.
type columnSpec struct {
	Name  string `json:"name"`
	Expr  string `json:"expr"`
	Agg   string `json:"agg"`
	Group string `json:"group"`
	As    string `json:"as"`
}

type joinSpec struct {
	Table   string         `json:"table"`
	Alias   string         `json:"alias"`
	Columns []columnSpec   `json:"columns"`
	On      *conditionSpec `json:"on"`
	Inner   bool           `json:"inner"`
}

type orderSpec struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

// conditionSpec is either a leaf (Column, Op and Value, Values or Ref) or
// a list of And / Or operands.
type conditionSpec struct {
	And    []*conditionSpec `json:"and"`
	Or     []*conditionSpec `json:"or"`
	Table  string           `json:"table"`
	Column string           `json:"column"`
	Op     string           `json:"op"`
	Value  interface{}      `json:"value"`
	Values []interface{}    `json:"values"`
	Ref    string           `json:"ref"`
}

type unionSpec struct {
	All        bool          `json:"all"`
	Statements []*selectSpec `json:"statements"`
}

type insertSpec struct {
	Namespace      string          `json:"namespace"`
	Table          string          `json:"table"`
	Columns        []string        `json:"columns"`
	Rows           [][]interface{} `json:"rows"`
	SkipDuplicates bool            `json:"skip_duplicates"`
}

type updateSpec struct {
	Namespace string           `json:"namespace"`
	Table     string           `json:"table"`
	Set       []assignmentSpec `json:"set"`
	Where     *conditionSpec   `json:"where"`
	Filter    string           `json:"filter"`
	Limit     int64            `json:"limit"`
}

// assignmentSpec sets Column to Value, or to the result of Expr. A null
// value removes the bin.
type assignmentSpec struct {
	Column string      `json:"column"`
	Value  interface{} `json:"value"`
	Expr   string      `json:"expr"`
}

// decodeDocument reads one JSON request. Numbers keep their integer-ness:
// 30 decodes as int64 and 30.5 as float64.
func decodeDocument(r io.Reader) (*document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	decoder.DisallowUnknownFields()

	var doc document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode statement: %w", err)
	}
	set := 0
	for _, present := range []bool{doc.Select != nil, doc.Union != nil, doc.Insert != nil, doc.Update != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("statement must contain exactly one of select, union, insert or update")
	}
	return &doc, nil
}

func (s *selectSpec) statement() (*query.Statement, error) {
	columns, err := buildColumns(s.Columns)
	if err != nil {
		return nil, err
	}
	where, err := s.Where.condition()
	if err != nil {
		return nil, err
	}
	stmt := &query.Statement{
		Namespace: s.Namespace,
		Table:     s.Table,
		Alias:     s.Alias,
		Columns:   columns,
		Where:     where,
		Filter:    s.Filter,
		Having:    s.Having,
		Distinct:  s.Distinct,
		Offset:    s.Offset,
		Limit:     s.Limit,
	}
	for _, j := range s.Joins {
		cols, err := buildColumns(j.Columns)
		if err != nil {
			return nil, err
		}
		on, err := j.On.condition()
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, query.Join{
			Table:         j.Table,
			Alias:         j.Alias,
			Columns:       cols,
			On:            on,
			SkipIfMissing: j.Inner,
		})
	}
	for _, o := range s.OrderBy {
		stmt.OrderBy = append(stmt.OrderBy, query.OrderItem{Column: o.Column, Desc: o.Desc})
	}
	return stmt, nil
}

func buildColumns(specs []columnSpec) ([]*query.Column, error) {
	columns := make([]*query.Column, 0, len(specs))
	for i, spec := range specs {
		var col *query.Column
		switch {
		case spec.Name != "":
			col = query.NewColumn(spec.Name)
		case spec.Expr != "":
			label := spec.As
			if label == "" {
				label = spec.Expr
			}
			col = query.NewExpressionColumn(label, spec.Expr)
		case spec.Agg != "":
			col = query.NewAggregateColumn(spec.Agg)
		case spec.Group != "":
			col = query.NewGroupColumn(spec.Group)
		default:
			return nil, fmt.Errorf("column #%d needs one of name, expr, agg or group", i+1)
		}
		if spec.As != "" {
			col.As(spec.As)
		}
		columns = append(columns, col)
	}
	return columns, nil
}

var operators = map[string]func(column string, v interface{}) *query.Condition{
	"=":  query.Eq,
	"==": query.Eq,
	"!=": query.Ne,
	"<>": query.Ne,
	">":  query.Gt,
	">=": query.Ge,
	"<":  query.Lt,
	"<=": query.Le,
}

func (c *conditionSpec) condition() (*query.Condition, error) {
	if c == nil {
		return nil, nil
	}
	if len(c.And) > 0 || len(c.Or) > 0 {
		if len(c.And) > 0 && len(c.Or) > 0 {
			return nil, fmt.Errorf("condition cannot combine and with or")
		}
		specs, build := c.And, query.And
		if len(c.Or) > 0 {
			specs, build = c.Or, query.Or
		}
		operands := make([]*query.Condition, 0, len(specs))
		for _, spec := range specs {
			operand, err := spec.condition()
			if err != nil {
				return nil, err
			}
			operands = append(operands, operand)
		}
		return build(operands...), nil
	}

	if c.Column == "" {
		return nil, fmt.Errorf("condition without a column")
	}
	value := literal(c.Value)
	if c.Ref != "" {
		value = query.ColumnRef{Name: c.Ref}
	}

	var cond *query.Condition
	switch op := strings.ToLower(strings.TrimSpace(c.Op)); op {
	case "between":
		if len(c.Values) != 2 {
			return nil, fmt.Errorf("between on %q needs 2 values", c.Column)
		}
		cond = query.Between(c.Column, literal(c.Values[0]), literal(c.Values[1]))
	case "in":
		values := make([]interface{}, len(c.Values))
		for i, v := range c.Values {
			values[i] = literal(v)
		}
		cond = query.In(c.Column, values...)
	default:
		build, ok := operators[op]
		if !ok {
			return nil, fmt.Errorf("unknown operator %q", c.Op)
		}
		cond = build(c.Column, value)
	}
	if c.Table != "" {
		cond.Of(c.Table)
	}
	return cond, nil
}

// literal turns a decoded json.Number into int64 or float64.
func literal(v interface{}) interface{} {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func (s *insertSpec) insert() *query.Insert {
	rows := make([][]interface{}, len(s.Rows))
	for i, row := range s.Rows {
		rows[i] = make([]interface{}, len(row))
		for j, v := range row {
			rows[i][j] = literal(v)
		}
	}
	return &query.Insert{
		Namespace:      s.Namespace,
		Table:          s.Table,
		Columns:        s.Columns,
		Rows:           rows,
		SkipDuplicates: s.SkipDuplicates,
	}
}

func (s *updateSpec) update() (*query.Update, error) {
	where, err := s.Where.condition()
	if err != nil {
		return nil, err
	}
	set := make([]query.Assignment, len(s.Set))
	for i, a := range s.Set {
		set[i] = query.Assignment{Column: a.Column, Value: literal(a.Value), Expression: a.Expr}
	}
	return &query.Update{
		Namespace: s.Namespace,
		Table:     s.Table,
		Set:       set,
		Where:     where,
		Filter:    s.Filter,
		Limit:     s.Limit,
	}, nil
}
