package query

import (
	"context"
)

// CompileUnion compiles every statement of a union and chains their
// cursors. Column names come from the first statement; every statement
// must return the same number of columns.
func (e *Engine) CompileUnion(ctx context.Context, u *Union) (Cursor, error) {
	if len(u.Statements) == 0 {
		return nil, invalidStatement("union without statements")
	}
	cursors := make([]Cursor, 0, len(u.Statements))
	closeAll := func() {
		for _, c := range cursors {
			_ = c.Close()
		}
	}
	for _, stmt := range u.Statements {
		c, err := e.Compile(ctx, stmt)
		if err != nil {
			closeAll()
			return nil, err
		}
		cursors = append(cursors, c)
	}

	chain := &chainCursor{cursors: cursors}
	if _, err := chain.Metadata(); err != nil {
		closeAll()
		return nil, err
	}
	if u.All {
		return chain, nil
	}
	return NewFilter(chain, Distinct()), nil
}

// chainCursor concatenates cursors with the same shape.
type chainCursor struct {
	cursors []Cursor
	pos     int
	columns []*Column
	err     error
}

func (c *chainCursor) fail(err error) error {
	if c.err == nil {
		c.err = err
	}
	return c.err
}

// Next implements Cursor
func (c *chainCursor) Next() (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	for c.pos < len(c.cursors) {
		ok, err := c.cursors[c.pos].Next()
		if err != nil {
			return false, c.fail(err)
		}
		if ok {
			return true, nil
		}
		c.pos++
	}
	return false, nil
}

// Value implements Cursor
func (c *chainCursor) Value(index int) (interface{}, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.pos >= len(c.cursors) {
		return nil, ErrNoCurrentRow
	}
	return c.cursors[c.pos].Value(index)
}

// ValueByName implements Cursor. Names resolve against the first
// statement's columns and are read by position from the current one.
func (c *chainCursor) ValueByName(name string) (interface{}, error) {
	v, _, err := c.lookup(name)
	return v, err
}

func (c *chainCursor) lookup(name string) (interface{}, bool, error) {
	col := findColumn(c.columns, name)
	for i, candidate := range c.columns {
		if candidate == col {
			v, err := c.Value(i)
			return v, true, err
		}
	}
	return nil, false, nil
}

// Metadata implements Cursor
func (c *chainCursor) Metadata() ([]*Column, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.columns != nil {
		return c.columns, nil
	}
	var first []*Column
	for i, cur := range c.cursors {
		columns, err := cur.Metadata()
		if err != nil {
			return nil, c.fail(err)
		}
		if i == 0 {
			first = columns
			continue
		}
		if len(columns) != len(first) {
			return nil, c.fail(invalidStatement("union statement #%d returns %d columns, the first returns %d", i+1, len(columns), len(first)))
		}
		for j, col := range columns {
			first[j].WidenType(col.Type())
		}
	}
	c.columns = first
	return c.columns, nil
}

// Reset implements Cursor
func (c *chainCursor) Reset() error {
	if c.err != nil {
		return c.err
	}
	for _, cur := range c.cursors {
		if err := cur.Reset(); err != nil {
			return c.fail(err)
		}
	}
	c.pos = 0
	return nil
}

// Close implements Cursor
func (c *chainCursor) Close() error {
	var first error
	for _, cur := range c.cursors {
		if err := cur.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
