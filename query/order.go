package query

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
)

// OrderItem is one ORDER BY key. Nulls compare lowest, so they come first
// in ascending order and last in descending order.
type OrderItem struct {
	Column string
	Desc   bool
}

// String implements fmt.Stringer
func (o OrderItem) String() string {
	if o.Desc {
		return o.Column + " DESC"
	}
	return o.Column
}

// OrderOptions bounds the sort buffer.
type OrderOptions struct {
	// Capacity caps the number of buffered rows. Zero or less buffers the
	// whole input.
	Capacity int

	// Lossy switches a bounded buffer to evict-before-admit: once the
	// buffer is full, the current maximum is dropped before every new row
	// is admitted, whether or not the new row sorts below it. This keeps
	// memory bounded but can return rows that are not the true first
	// Capacity rows. The default keeps a correct top-K.
	Lossy bool
}

// sortEntry is one buffered row.
type sortEntry struct {
	row  Row
	keys []interface{}
	seq  int
}

// rowComparator orders entries by the ORDER BY keys with nulls lowest and
// falls back to input order.
type rowComparator []OrderItem

func (items rowComparator) compare(a, b *sortEntry) int {
	for i, item := range items {
		cmp := compareValues(a.keys[i], b.keys[i])
		if cmp != 0 {
			if item.Desc {
				return -cmp
			}
			return cmp
		}
	}
	return compareInt64(int64(a.seq), int64(b.seq))
}

// maxHeap keeps the largest buffered entry on top so it can be evicted.
type maxHeap struct {
	entries []*sortEntry
	cmp     rowComparator
}

func (h *maxHeap) Len() int           { return len(h.entries) }
func (h *maxHeap) Less(i, j int) bool { return h.cmp.compare(h.entries[i], h.entries[j]) > 0 }
func (h *maxHeap) Swap(i, j int)      { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *maxHeap) Push(x interface{}) { h.entries = append(h.entries, x.(*sortEntry)) }
func (h *maxHeap) Pop() interface{} {
	last := h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return last
}

// SortedCursor buffers its inner cursor and replays it in ORDER BY order.
type SortedCursor struct {
	inner   Cursor
	order   rowComparator
	options OrderOptions
	columns []*Column
	result  *ListCursor
	err     error
}

// NewSortedCursor creates an ordering over inner.
func NewSortedCursor(inner Cursor, order []OrderItem, options OrderOptions) *SortedCursor {
	return &SortedCursor{inner: inner, order: order, options: options}
}

func (s *SortedCursor) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return s.err
}

func (s *SortedCursor) materialize() error {
	if s.err != nil {
		return s.err
	}
	if s.result != nil {
		return nil
	}

	columns, err := s.inner.Metadata()
	if err != nil {
		return s.fail(err)
	}
	s.columns = columns

	buffer := &maxHeap{cmp: s.order}
	bounded := s.options.Capacity > 0
	for seq := 0; ; seq++ {
		ok, err := s.inner.Next()
		if err != nil {
			return s.fail(err)
		}
		if !ok {
			break
		}
		entry, err := s.capture(seq)
		if err != nil {
			return s.fail(err)
		}

		switch {
		case !bounded || buffer.Len() < s.options.Capacity:
			heap.Push(buffer, entry)
		case s.options.Lossy:
			heap.Pop(buffer)
			heap.Push(buffer, entry)
		case s.order.compare(entry, buffer.entries[0]) < 0:
			buffer.entries[0] = entry
			heap.Fix(buffer, 0)
		}
	}

	entries := buffer.entries
	sort.Slice(entries, func(i, j int) bool {
		return s.order.compare(entries[i], entries[j]) < 0
	})
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = e.row
	}
	s.result = NewListCursor(columns, rows)
	return nil
}

// capture copies the current row and its sort keys. Sort keys are read by
// name, so they may refer to columns that are not projected.
func (s *SortedCursor) capture(seq int) (*sortEntry, error) {
	row := make(Row, len(s.columns))
	for i := range s.columns {
		v, err := s.inner.Value(i)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	keys := make([]interface{}, len(s.order))
	for i, item := range s.order {
		v, err := s.inner.ValueByName(item.Column)
		if err != nil {
			return nil, err
		}
		keys[i] = normalizeValue(v)
	}
	return &sortEntry{row: row, keys: keys, seq: seq}, nil
}

// Next implements Cursor
func (s *SortedCursor) Next() (bool, error) {
	if err := s.materialize(); err != nil {
		return false, err
	}
	return s.result.Next()
}

// IsLast implements LastAware
func (s *SortedCursor) IsLast() (bool, error) {
	if err := s.materialize(); err != nil {
		return false, err
	}
	return s.result.IsLast()
}

// Value implements Cursor
func (s *SortedCursor) Value(index int) (interface{}, error) {
	if err := s.materialize(); err != nil {
		return nil, err
	}
	return s.result.Value(index)
}

// ValueByName implements Cursor
func (s *SortedCursor) ValueByName(name string) (interface{}, error) {
	if err := s.materialize(); err != nil {
		return nil, err
	}
	return s.result.ValueByName(name)
}

func (s *SortedCursor) lookup(name string) (interface{}, bool, error) {
	if err := s.materialize(); err != nil {
		return nil, false, err
	}
	return s.result.lookup(name)
}

// Metadata implements Cursor
func (s *SortedCursor) Metadata() ([]*Column, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.columns != nil {
		return s.columns, nil
	}
	columns, err := s.inner.Metadata()
	if err != nil {
		return nil, s.fail(err)
	}
	return columns, nil
}

// Reset implements Cursor. The sorted buffer is replayed.
func (s *SortedCursor) Reset() error {
	if s.err != nil {
		return s.err
	}
	if s.result != nil {
		return s.result.Reset()
	}
	return nil
}

// Close implements Cursor
func (s *SortedCursor) Close() error {
	return s.inner.Close()
}

// String implements fmt.Stringer
func (s *SortedCursor) String() string {
	keys := make([]string, len(s.order))
	for i, item := range s.order {
		keys[i] = item.String()
	}
	mode := "exact"
	if s.options.Lossy && s.options.Capacity > 0 {
		mode = "lossy"
	}
	return fmt.Sprintf("Sort(%s; capacity=%d, %s)", strings.Join(keys, ", "), s.options.Capacity, mode)
}
