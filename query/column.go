package query

import (
	"fmt"
	"strings"
)

// PrimaryKey is the reserved column name that addresses a record's key.
const PrimaryKey = "PK"

// Role tags what a column is used for within a statement.
type Role int

const (
	RoleData       Role = iota // plain bin projected to the caller
	RolePrimaryKey             // the record key
	RoleHidden                 // fetched for internal use, never returned
	RoleAggregated             // aggregate function output, e.g. sum(v)
	RoleGroup                  // GROUP BY key column
	RoleExpression             // computed from an expression
)

// String implements fmt.Stringer
func (r Role) String() string {
	switch r {
	case RolePrimaryKey:
		return "PRIMARY_KEY"
	case RoleHidden:
		return "HIDDEN"
	case RoleAggregated:
		return "AGGREGATED"
	case RoleGroup:
		return "GROUP"
	case RoleExpression:
		return "EXPRESSION"
	default:
		return "DATA"
	}
}

// Type is the discovered value type of a column.
type Type int

const (
	TypeUnknown Type = iota
	TypeBoolean
	TypeInteger
	TypeLong
	TypeDouble
	TypeString
	TypeBytes
	TypeList
	TypeMap
)

// String implements fmt.Stringer
func (t Type) String() string {
	switch t {
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInteger:
		return "INTEGER"
	case TypeLong:
		return "LONG"
	case TypeDouble:
		return "DOUBLE"
	case TypeString:
		return "STRING"
	case TypeBytes:
		return "BYTES"
	case TypeList:
		return "LIST"
	case TypeMap:
		return "MAP"
	default:
		return "UNKNOWN"
	}
}

func (t Type) numeric() bool {
	return t == TypeInteger || t == TypeLong || t == TypeDouble
}

// TypeOf returns the column type matching a Go value. Nil yields TypeUnknown.
func TypeOf(v interface{}) Type {
	switch v.(type) {
	case nil:
		return TypeUnknown
	case bool:
		return TypeBoolean
	case int8, int16, int32, uint8, uint16:
		return TypeInteger
	case int, int64, uint32, uint, uint64:
		return TypeLong
	case float32, float64:
		return TypeDouble
	case string:
		return TypeString
	case []byte:
		return TypeBytes
	case []interface{}:
		return TypeList
	case map[string]interface{}:
		return TypeMap
	default:
		return TypeString
	}
}

// Column describes one projected or filtering column of a statement.
//
// Columns are created once when a statement is compiled and shared by every
// cursor of its chain. The discovered type is mutated in place; see
// DiscoverType for the rules.
type Column struct {
	Catalog    string // namespace
	Table      string // set
	Name       string // bin name, PK, or function text for aggregates
	Label      string // output alias; defaults to Name
	Expression string // source expression for RoleExpression columns
	Role       Role

	typ Type
}

// NewColumn creates a data column.
func NewColumn(name string) *Column {
	role := RoleData
	if strings.EqualFold(name, PrimaryKey) {
		name = PrimaryKey
		role = RolePrimaryKey
	}
	return &Column{Name: name, Role: role}
}

// NewExpressionColumn creates a computed column with the given label.
func NewExpressionColumn(label, expr string) *Column {
	return &Column{Name: label, Label: label, Expression: expr, Role: RoleExpression}
}

// NewAggregateColumn creates an aggregate column, e.g. NewAggregateColumn("sum(v)").
func NewAggregateColumn(function string) *Column {
	return &Column{Name: function, Role: RoleAggregated}
}

// NewGroupColumn creates a GROUP BY column.
func NewGroupColumn(name string) *Column {
	return &Column{Name: name, Role: RoleGroup}
}

// As sets the output label and returns the column for chaining.
func (c *Column) As(label string) *Column {
	c.Label = label
	return c
}

// WithType presets the column type and returns the column for chaining.
func (c *Column) WithType(t Type) *Column {
	c.typ = t
	return c
}

// OutputName returns the label if set, the name otherwise.
func (c *Column) OutputName() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// Type returns the discovered type, TypeUnknown until discovery happened.
func (c *Column) Type() Type {
	return c.typ
}

// Visible reports whether the column is returned to the caller.
func (c *Column) Visible() bool {
	return c.Role != RoleHidden
}

// DiscoverType records an observed type.
//
// The first discovery wins. A later discovery of the same type is a no-op,
// discoveries within the numeric family widen the type, and anything else
// fails with a type conflict error.
func (c *Column) DiscoverType(t Type) error {
	if t == TypeUnknown || t == c.typ {
		return nil
	}
	if c.typ == TypeUnknown {
		c.typ = t
		return nil
	}
	if c.typ.numeric() && t.numeric() {
		c.typ = commonType(c.typ, t)
		return nil
	}
	return typeConflict("column %q: discovered %s, previously %s", c.OutputName(), t, c.typ)
}

// WidenType widens the type to the common supertype of the current type and
// t. Unlike DiscoverType it never fails: incompatible types fall back to
// TypeString.
func (c *Column) WidenType(t Type) {
	c.typ = commonType(c.typ, t)
}

func commonType(a, b Type) Type {
	switch {
	case a == TypeUnknown:
		return b
	case b == TypeUnknown || a == b:
		return a
	case a.numeric() && b.numeric():
		if a == TypeDouble || b == TypeDouble {
			return TypeDouble
		}
		return TypeLong
	default:
		return TypeString
	}
}

// String implements fmt.Stringer
func (c *Column) String() string {
	var b strings.Builder
	if c.Table != "" {
		b.WriteString(c.Table)
		b.WriteString(".")
	}
	b.WriteString(c.Name)
	if c.Label != "" && c.Label != c.Name {
		fmt.Fprintf(&b, " AS %s", c.Label)
	}
	return b.String()
}

// allTyped reports whether every visible column has a discovered type.
func allTyped(columns []*Column) bool {
	for _, c := range columns {
		if c.Visible() && c.typ == TypeUnknown {
			return false
		}
	}
	return true
}

// visibleColumns filters out hidden columns, preserving order.
func visibleColumns(columns []*Column) []*Column {
	visible := make([]*Column, 0, len(columns))
	for _, c := range columns {
		if c.Visible() {
			visible = append(visible, c)
		}
	}
	return visible
}

// findColumn looks a column up by label first, then by name.
func findColumn(columns []*Column, name string) *Column {
	for _, c := range columns {
		if c.Label != "" && c.Label == name {
			return c
		}
	}
	for _, c := range columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}
