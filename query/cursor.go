package query

import (
	"errors"
	"strings"
)

// Cursor is a forward-only row iterator.
//
// Every access strategy and every operator of the engine implements it, so
// operators compose by wrapping one cursor in another. Cursors are not safe
// for concurrent use.
//
// Once any call has failed the cursor is in a failed terminal state: Next
// keeps returning the same error.
type Cursor interface {
	// Next advances to the next row and reports whether there is one.
	Next() (bool, error)

	// Value returns the value of the index-th visible column of the
	// current row.
	Value(index int) (interface{}, error)

	// ValueByName returns the value of a column by label or name. Unknown
	// names resolve to nil.
	ValueByName(name string) (interface{}, error)

	// Metadata returns the visible columns with their discovered types.
	Metadata() ([]*Column, error)

	// Reset rewinds to before the first row, where the source allows it.
	Reset() error

	// Close releases the underlying resources.
	Close() error
}

// LastAware is implemented by cursors that know whether the current row is
// the last one without advancing.
type LastAware interface {
	IsLast() (bool, error)
}

// ErrNoCurrentRow is returned by value accessors outside a row.
var ErrNoCurrentRow = errors.New("cursor is not positioned on a row")

// ErrNotRewindable is returned by Reset on single-pass cursors.
var ErrNotRewindable = errors.New("cursor cannot be rewound")

// namedLookup resolves a column name and reports whether the cursor knows
// the name at all, which lets the join operator tell a null value apart
// from a foreign column.
type namedLookup interface {
	lookup(name string) (interface{}, bool, error)
}

func lookup(c Cursor, name string) (interface{}, bool, error) {
	if l, ok := c.(namedLookup); ok {
		return l.lookup(name)
	}
	v, err := c.ValueByName(name)
	return v, v != nil, err
}

// splitQualified splits "table.column" into its parts.
func splitQualified(name string) (table, column string) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// valueAt maps a visible column index onto a name lookup.
func valueAt(c Cursor, index int) (interface{}, error) {
	columns, err := c.Metadata()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(columns) {
		return nil, invalidStatement("column index %d out of range [0, %d)", index, len(columns))
	}
	return c.ValueByName(columns[index].OutputName())
}

// Row is a materialized row: visible column values in metadata order.
type Row []interface{}

// ReadAll drains a cursor into memory and closes it.
func ReadAll(c Cursor) ([]*Column, []Row, error) {
	defer func() { _ = c.Close() }()

	columns, err := c.Metadata()
	if err != nil {
		return nil, nil, err
	}

	var rows []Row
	for {
		ok, err := c.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		row := make(Row, len(columns))
		for i := range columns {
			if row[i], err = c.Value(i); err != nil {
				return nil, nil, err
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

// ReadMaps drains a cursor into label-keyed maps and closes it.
func ReadMaps(c Cursor) ([]map[string]interface{}, error) {
	columns, rows, err := ReadAll(c)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		m := make(map[string]interface{}, len(columns))
		for j, col := range columns {
			m[col.OutputName()] = row[j]
		}
		out[i] = m
	}
	return out, nil
}

// ListCursor iterates over rows held in memory.
type ListCursor struct {
	columns []*Column
	rows    []Row
	pos     int
}

// NewListCursor creates a cursor over rows whose values follow the order of
// columns. Hidden columns are not allowed.
func NewListCursor(columns []*Column, rows []Row) *ListCursor {
	return &ListCursor{columns: columns, rows: rows, pos: -1}
}

// Next implements Cursor
func (l *ListCursor) Next() (bool, error) {
	if l.pos < len(l.rows) {
		l.pos++
	}
	return l.pos < len(l.rows), nil
}

// IsLast implements LastAware
func (l *ListCursor) IsLast() (bool, error) {
	return l.pos == len(l.rows)-1, nil
}

// Value implements Cursor
func (l *ListCursor) Value(index int) (interface{}, error) {
	if l.pos < 0 || l.pos >= len(l.rows) {
		return nil, ErrNoCurrentRow
	}
	if index < 0 || index >= len(l.columns) {
		return nil, invalidStatement("column index %d out of range [0, %d)", index, len(l.columns))
	}
	row := l.rows[l.pos]
	if index >= len(row) {
		return nil, nil
	}
	return row[index], nil
}

// ValueByName implements Cursor
func (l *ListCursor) ValueByName(name string) (interface{}, error) {
	v, _, err := l.lookup(name)
	return v, err
}

func (l *ListCursor) lookup(name string) (interface{}, bool, error) {
	if l.pos < 0 || l.pos >= len(l.rows) {
		return nil, false, ErrNoCurrentRow
	}
	col := findColumn(l.columns, name)
	if col == nil {
		if table, column := splitQualified(name); table != "" {
			col = findColumn(l.columns, column)
			if col != nil && col.Table != "" && col.Table != table {
				col = nil
			}
		}
	}
	if col == nil {
		return nil, false, nil
	}
	for i, c := range l.columns {
		if c == col {
			v, err := l.Value(i)
			return v, true, err
		}
	}
	return nil, false, nil
}

// Metadata implements Cursor
func (l *ListCursor) Metadata() ([]*Column, error) {
	return l.columns, nil
}

// Reset implements Cursor
func (l *ListCursor) Reset() error {
	l.pos = -1
	return nil
}

// Close implements Cursor
func (l *ListCursor) Close() error {
	return nil
}
