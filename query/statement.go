package query

import (
	"fmt"
	"strings"
)

// Statement is a normalized SELECT.
//
// Columns lists the output columns of the main table in order; an empty
// list selects every bin (PK first). Roles decide how each column is
// produced: DATA and PRIMARY_KEY columns are read from records, EXPRESSION
// columns are computed, and as soon as one column is GROUP or AGGREGATED
// the statement aggregates.
type Statement struct {
	Namespace string
	Table     string
	Alias     string
	Columns   []*Column

	// Where is the condition tree planned against the store. Conditions
	// owned by a joined alias are evaluated after the join.
	Where *Condition

	// Filter is a free-form boolean expression evaluated per row after
	// joins, for predicates the condition model cannot express.
	Filter string

	Joins []Join

	// Having filters aggregated rows.
	Having string

	Distinct bool
	OrderBy  []OrderItem

	// Offset skips rows; Limit caps them. A Limit of zero or less means
	// no limit.
	Offset int64
	Limit  int64
}

// Join is one joined table.
type Join struct {
	Table   string
	Alias   string
	Columns []*Column

	// On is planned against the joined table for every outer row, after
	// its ColumnRef operands are resolved from the outer row.
	On *Condition

	// SkipIfMissing drops outer rows without a match (INNER JOIN);
	// otherwise such rows are kept with null inner columns (LEFT JOIN).
	SkipIfMissing bool
}

// name returns the alias the join's columns are qualified with.
func (j *Join) name() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// name returns the alias the main table's columns are qualified with.
func (s *Statement) name() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Table
}

// aggregated reports whether the statement groups or aggregates.
func (s *Statement) aggregated() bool {
	for _, c := range s.Columns {
		if c.Role == RoleAggregated || c.Role == RoleGroup {
			return true
		}
	}
	return false
}

func (s *Statement) validate() error {
	if s.Table == "" {
		return invalidStatement("statement without a table")
	}
	names := map[string]bool{s.name(): true}
	for i := range s.Joins {
		j := &s.Joins[i]
		if j.Table == "" {
			return invalidStatement("join #%d without a table", i+1)
		}
		if names[j.name()] {
			return invalidStatement("duplicate table alias %q", j.name())
		}
		names[j.name()] = true
		if err := j.On.validate(); err != nil {
			return err
		}
	}
	if s.Offset < 0 {
		return invalidStatement("negative offset %d", s.Offset)
	}
	if s.aggregated() && len(s.Joins) > 0 {
		for _, j := range s.Joins {
			if len(visibleColumns(j.Columns)) > 0 {
				return invalidStatement("joined column %s must be aggregated or grouped", j.Columns[0])
			}
		}
	}
	if s.Having != "" && !s.aggregated() {
		return invalidStatement("HAVING without aggregation")
	}
	return s.Where.validate()
}

// String renders the statement in SQL-like form for logs.
func (s *Statement) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.Columns) == 0 {
		b.WriteString("*")
	}
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if c.Role == RoleExpression {
			fmt.Fprintf(&b, "%s AS %s", c.Expression, c.OutputName())
			continue
		}
		b.WriteString(c.String())
	}
	fmt.Fprintf(&b, " FROM %s", s.Table)
	if s.Alias != "" {
		fmt.Fprintf(&b, " %s", s.Alias)
	}
	for _, j := range s.Joins {
		kind := "LEFT JOIN"
		if j.SkipIfMissing {
			kind = "JOIN"
		}
		fmt.Fprintf(&b, " %s %s", kind, j.Table)
		if j.Alias != "" {
			fmt.Fprintf(&b, " %s", j.Alias)
		}
		if j.On != nil {
			fmt.Fprintf(&b, " ON %s", j.On)
		}
	}
	if s.Where != nil {
		fmt.Fprintf(&b, " WHERE %s", s.Where)
	}
	if s.Filter != "" {
		if s.Where != nil {
			fmt.Fprintf(&b, " AND (%s)", s.Filter)
		} else {
			fmt.Fprintf(&b, " WHERE %s", s.Filter)
		}
	}
	var groups []string
	for _, c := range s.Columns {
		if c.Role == RoleGroup {
			groups = append(groups, c.Name)
		}
	}
	if len(groups) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", strings.Join(groups, ", "))
	}
	if s.Having != "" {
		fmt.Fprintf(&b, " HAVING %s", s.Having)
	}
	if len(s.OrderBy) > 0 {
		keys := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			keys[i] = o.String()
		}
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(keys, ", "))
	}
	if s.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", s.Limit)
	}
	if s.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", s.Offset)
	}
	return b.String()
}

// Union combines the results of several statements. Without All, duplicate
// rows are removed.
type Union struct {
	Statements []*Statement
	All        bool
}

// Insert writes rows by key. Columns must include the primary key column.
type Insert struct {
	Namespace string
	Table     string
	Columns   []string
	Rows      [][]interface{}

	// SkipDuplicates overwrites existing records instead of failing.
	SkipDuplicates bool
}

// Update rewrites bins of the records matched by Where and Filter. A Limit
// of zero or less updates every match.
type Update struct {
	Namespace string
	Table     string
	Set       []Assignment
	Where     *Condition
	Filter    string
	Limit     int64
}

// Assignment sets one bin. Expression, when given, is evaluated against the
// record being updated; otherwise Value is stored as is. A null result
// removes the bin.
type Assignment struct {
	Column     string
	Value      interface{}
	Expression string
}

func (u *Update) validate() error {
	if u.Table == "" {
		return invalidStatement("update without a table")
	}
	if len(u.Set) == 0 {
		return invalidStatement("update of %s without assignments", u.Table)
	}
	seen := make(map[string]bool, len(u.Set))
	for _, a := range u.Set {
		switch {
		case a.Column == "":
			return invalidStatement("assignment without a column")
		case isPrimaryKey(a.Column):
			return invalidStatement("%s cannot be updated", PrimaryKey)
		case seen[a.Column]:
			return invalidStatement("column %s is assigned twice", a.Column)
		}
		seen[a.Column] = true
	}
	return u.Where.validate()
}
