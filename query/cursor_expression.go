package query

// expressionCursor computes EXPRESSION columns on top of an inner cursor.
// Values are computed on first access and cached until the next row.
type expressionCursor struct {
	inner   Cursor
	exprs   map[*Column]*Expression
	columns []*Column
	values  map[*Column]interface{}
	err     error
}

func newExpressionCursor(inner Cursor, evaluator *Evaluator, columns []*Column, known []string) (*expressionCursor, error) {
	exprs := make(map[*Column]*Expression)
	for _, c := range columns {
		if c.Role != RoleExpression {
			continue
		}
		compiled, err := evaluator.Compile(c.Expression, known...)
		if err != nil {
			return nil, err
		}
		exprs[c] = compiled
	}
	return &expressionCursor{
		inner:   inner,
		exprs:   exprs,
		columns: columns,
		values:  make(map[*Column]interface{}),
	}, nil
}

func (e *expressionCursor) fail(err error) error {
	if e.err == nil {
		e.err = err
	}
	return e.err
}

// Next implements Cursor
func (e *expressionCursor) Next() (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	e.values = make(map[*Column]interface{})
	ok, err := e.inner.Next()
	if err != nil {
		return false, e.fail(err)
	}
	return ok, nil
}

func (e *expressionCursor) compute(c *Column) (interface{}, error) {
	if v, ok := e.values[c]; ok {
		return v, nil
	}
	v, err := e.exprs[c].Eval(e.inner.ValueByName)
	if err != nil {
		return nil, e.fail(err)
	}
	if err := c.DiscoverType(TypeOf(v)); err != nil {
		return nil, e.fail(err)
	}
	e.values[c] = v
	return v, nil
}

// Value implements Cursor
func (e *expressionCursor) Value(index int) (interface{}, error) {
	if e.err != nil {
		return nil, e.err
	}
	columns, err := e.Metadata()
	if err != nil {
		return nil, err
	}
	if index >= 0 && index < len(columns) {
		if _, ok := e.exprs[columns[index]]; ok {
			return e.compute(columns[index])
		}
	}
	return e.inner.Value(index)
}

// ValueByName implements Cursor
func (e *expressionCursor) ValueByName(name string) (interface{}, error) {
	v, _, err := e.lookup(name)
	return v, err
}

func (e *expressionCursor) lookup(name string) (interface{}, bool, error) {
	if e.err != nil {
		return nil, false, e.err
	}
	c := findColumn(e.columns, name)
	if c == nil {
		if table, column := splitQualified(name); table != "" {
			if c = findColumn(e.columns, column); c != nil && c.Table != table {
				c = nil
			}
		}
	}
	if c != nil {
		if _, ok := e.exprs[c]; ok {
			v, err := e.compute(c)
			return v, true, err
		}
	}
	return lookup(e.inner, name)
}

// Metadata implements Cursor
func (e *expressionCursor) Metadata() ([]*Column, error) {
	if e.err != nil {
		return nil, e.err
	}
	columns, err := e.inner.Metadata()
	if err != nil {
		return nil, e.fail(err)
	}
	return columns, nil
}

// Reset implements Cursor
func (e *expressionCursor) Reset() error {
	e.values = make(map[*Column]interface{})
	return e.inner.Reset()
}

// Close implements Cursor
func (e *expressionCursor) Close() error {
	return e.inner.Close()
}

// projectionCursor narrows an inner cursor to a column list. It serves the
// final name check: the caller sees exactly the requested visible columns,
// in order, whatever helper columns the chain carried.
type projectionCursor struct {
	inner   Cursor
	columns []*Column
}

func newProjectionCursor(inner Cursor, columns []*Column) *projectionCursor {
	return &projectionCursor{inner: inner, columns: visibleColumns(columns)}
}

// Next implements Cursor
func (p *projectionCursor) Next() (bool, error) {
	return p.inner.Next()
}

// Value implements Cursor
func (p *projectionCursor) Value(index int) (interface{}, error) {
	if index < 0 || index >= len(p.columns) {
		return nil, invalidStatement("column index %d out of range [0, %d)", index, len(p.columns))
	}
	c := p.columns[index]
	if c.Table != "" {
		if v, found, err := lookup(p.inner, c.Table+"."+c.OutputName()); err != nil || found {
			return v, err
		}
	}
	return p.inner.ValueByName(c.OutputName())
}

// ValueByName implements Cursor
func (p *projectionCursor) ValueByName(name string) (interface{}, error) {
	return p.inner.ValueByName(name)
}

func (p *projectionCursor) lookup(name string) (interface{}, bool, error) {
	return lookup(p.inner, name)
}

// Metadata implements Cursor. Types are resolved by the inner chain.
func (p *projectionCursor) Metadata() ([]*Column, error) {
	if _, err := p.inner.Metadata(); err != nil {
		return nil, err
	}
	return p.columns, nil
}

// Reset implements Cursor
func (p *projectionCursor) Reset() error {
	return p.inner.Reset()
}

// Close implements Cursor
func (p *projectionCursor) Close() error {
	return p.inner.Close()
}
