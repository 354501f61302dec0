package query

import (
	"fmt"
	"strings"
)

// Predicate decides whether the current row of a cursor is kept.
type Predicate interface {
	Test(c Cursor) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(c Cursor) (bool, error)

// Test implements Predicate
func (f PredicateFunc) Test(c Cursor) (bool, error) {
	return f(c)
}

// resettable predicates carry per-iteration state.
type resettable interface {
	reset()
}

// exhaustible predicates can tell that no further row will ever pass.
type exhaustible interface {
	exhausted() bool
}

// FilterCursor keeps only the rows of the inner cursor accepted by a
// predicate.
type FilterCursor struct {
	inner     Cursor
	predicate Predicate
	err       error
	// positioned is set while the cursor rests on an accepted row.
	positioned bool
}

// NewFilter wraps inner with a row predicate.
func NewFilter(inner Cursor, predicate Predicate) *FilterCursor {
	return &FilterCursor{inner: inner, predicate: predicate}
}

// Next implements Cursor. It advances the inner cursor until the predicate
// accepts a row or the source is exhausted.
func (f *FilterCursor) Next() (bool, error) {
	f.positioned = false
	if f.err != nil {
		return false, f.err
	}
	for {
		if e, ok := f.predicate.(exhaustible); ok && e.exhausted() {
			return false, nil
		}
		ok, err := f.inner.Next()
		if err != nil {
			f.err = err
			return false, err
		}
		if !ok {
			return false, nil
		}
		accepted, err := f.predicate.Test(f.inner)
		if err != nil {
			f.err = err
			return false, err
		}
		if accepted {
			f.positioned = true
			return true, nil
		}
	}
}

// IsLast implements LastAware. The current row was accepted by Next, so it
// is last when the predicate accepts nothing more or the source is on its
// last row. The predicate is not consulted again.
func (f *FilterCursor) IsLast() (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if !f.positioned {
		return false, nil
	}
	if e, ok := f.predicate.(exhaustible); ok && e.exhausted() {
		return true, nil
	}
	la, ok := f.inner.(LastAware)
	if !ok {
		return false, fmt.Errorf("cursor %T cannot report its last row", f.inner)
	}
	return la.IsLast()
}

// Value implements Cursor
func (f *FilterCursor) Value(index int) (interface{}, error) {
	return f.inner.Value(index)
}

// ValueByName implements Cursor
func (f *FilterCursor) ValueByName(name string) (interface{}, error) {
	return f.inner.ValueByName(name)
}

func (f *FilterCursor) lookup(name string) (interface{}, bool, error) {
	return lookup(f.inner, name)
}

// Metadata implements Cursor
func (f *FilterCursor) Metadata() ([]*Column, error) {
	return f.inner.Metadata()
}

// Reset implements Cursor
func (f *FilterCursor) Reset() error {
	if err := f.inner.Reset(); err != nil {
		return err
	}
	if r, ok := f.predicate.(resettable); ok {
		r.reset()
	}
	f.err = nil
	f.positioned = false
	return nil
}

// Close implements Cursor
func (f *FilterCursor) Close() error {
	return f.inner.Close()
}

// OffsetLimit returns a predicate that skips the first offset rows and then
// accepts at most limit rows. A negative limit means no limit.
func OffsetLimit(offset, limit int64) Predicate {
	if offset < 0 {
		offset = 0
	}
	return &offsetLimit{offset: offset, limit: limit}
}

type offsetLimit struct {
	offset  int64
	limit   int64
	counter int64
}

func (o *offsetLimit) Test(Cursor) (bool, error) {
	o.counter++
	if o.counter <= o.offset {
		return false, nil
	}
	return o.limit < 0 || o.counter-o.offset <= o.limit, nil
}

func (o *offsetLimit) exhausted() bool {
	return o.limit >= 0 && o.counter-o.offset >= o.limit
}

func (o *offsetLimit) reset() {
	o.counter = 0
}

// Distinct returns a predicate that accepts a row only the first time its
// key is seen. The key is the tuple of the named columns, or of every
// visible column when none are given.
func Distinct(columns ...string) Predicate {
	return &distinct{columns: columns, seen: make(map[string]struct{})}
}

type distinct struct {
	columns []string
	seen    map[string]struct{}
}

func (d *distinct) Test(c Cursor) (bool, error) {
	values, err := d.values(c)
	if err != nil {
		return false, err
	}
	key := rowKey(values)
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = struct{}{}
	return true, nil
}

func (d *distinct) values(c Cursor) ([]interface{}, error) {
	if len(d.columns) > 0 {
		values := make([]interface{}, len(d.columns))
		for i, name := range d.columns {
			v, err := c.ValueByName(name)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}

	columns, err := c.Metadata()
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(columns))
	for i := range columns {
		if values[i], err = c.Value(i); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func (d *distinct) reset() {
	d.seen = make(map[string]struct{})
}

// rowKey creates a unique string key from a tuple of values
func rowKey(values []interface{}) string {
	var key strings.Builder
	for i, v := range values {
		if i > 0 {
			key.WriteString("\x00||\x00") // Use unlikely separator to avoid collisions
		}
		key.WriteString(fmt.Sprintf("%#v", normalizeValue(v))) // Use %#v for better type differentiation
	}
	return key.String()
}

// ConditionPredicate evaluates a condition tree against each row.
func ConditionPredicate(c *Condition) Predicate {
	return PredicateFunc(func(cur Cursor) (bool, error) {
		return c.Match(func(table, column string) (interface{}, error) {
			name := column
			if table != "" {
				name = table + "." + column
			}
			return cur.ValueByName(name)
		})
	})
}
