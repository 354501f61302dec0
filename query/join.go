package query

// JoinSource describes one joined table.
type JoinSource struct {
	// Open creates the inner cursor for the current outer row.
	Open func(outer Cursor) (Cursor, error)

	// Metadata returns the inner columns without needing an outer row.
	Metadata func() ([]*Column, error)

	// SkipIfMissing drops outer rows without a match (inner join). When
	// false, such rows are kept once with null inner columns (left join).
	SkipIfMissing bool
}

// JoinCursor combines an outer cursor with one inner cursor per joined
// table.
//
// It alternates between two states. Fetching a new outer row opens every
// inner cursor and advances it once; an empty skip-if-missing inner cursor
// abandons the outer row. Draining advances every inner cursor in lockstep
// until a skip-if-missing inner cursor or all of them are exhausted.
type JoinCursor struct {
	outer      Cursor
	joins      []JoinSource
	inners     []Cursor
	positioned []bool
	fetchOuter bool
	metadata   []*Column
	widths     []int
	err        error
}

// NewJoinCursor creates a join of outer with the given sources, in order.
func NewJoinCursor(outer Cursor, joins ...JoinSource) *JoinCursor {
	return &JoinCursor{
		outer:      outer,
		joins:      joins,
		inners:     make([]Cursor, len(joins)),
		positioned: make([]bool, len(joins)),
		fetchOuter: true,
	}
}

func (j *JoinCursor) fail(err error) error {
	if j.err == nil {
		j.err = err
		j.closeInners()
	}
	return j.err
}

// Next implements Cursor
func (j *JoinCursor) Next() (bool, error) {
	if j.err != nil {
		return false, j.err
	}
	for {
		if j.fetchOuter {
			ok, err := j.outer.Next()
			if err != nil {
				return false, j.fail(err)
			}
			j.closeInners()
			if !ok {
				return false, nil
			}

			skip := false
			for i, src := range j.joins {
				inner, err := src.Open(j.outer)
				if err != nil {
					return false, j.fail(err)
				}
				j.inners[i] = inner
				has, err := inner.Next()
				if err != nil {
					return false, j.fail(err)
				}
				j.positioned[i] = has
				if !has && src.SkipIfMissing {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
			j.fetchOuter = false
			return true, nil
		}

		allDone := true
		moveOuter := false
		for i, inner := range j.inners {
			has, err := inner.Next()
			if err != nil {
				return false, j.fail(err)
			}
			j.positioned[i] = has
			if has {
				allDone = false
			} else if j.joins[i].SkipIfMissing {
				moveOuter = true
			}
		}
		if moveOuter || allDone {
			j.fetchOuter = true
			continue
		}
		return true, nil
	}
}

func (j *JoinCursor) closeInners() {
	for i, inner := range j.inners {
		if inner != nil {
			_ = inner.Close()
			j.inners[i] = nil
		}
		j.positioned[i] = false
	}
}

// Value implements Cursor. Indexes address the outer columns first, then
// each inner cursor's columns in join order.
func (j *JoinCursor) Value(index int) (interface{}, error) {
	if _, err := j.Metadata(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(j.metadata) {
		return nil, invalidStatement("column index %d out of range [0, %d)", index, len(j.metadata))
	}
	if index < j.widths[0] {
		return j.outer.Value(index)
	}
	index -= j.widths[0]
	for i := range j.joins {
		width := j.widths[i+1]
		if index < width {
			if j.inners[i] == nil || !j.positioned[i] {
				return nil, nil
			}
			return j.inners[i].Value(index)
		}
		index -= width
	}
	return nil, nil
}

// ValueByName implements Cursor
func (j *JoinCursor) ValueByName(name string) (interface{}, error) {
	v, _, err := j.lookup(name)
	return v, err
}

// lookup checks the outer row first, but only trusts a non-null value
// there, since outer and inner tables may share column names. Inner
// cursors are then searched in join order.
func (j *JoinCursor) lookup(name string) (interface{}, bool, error) {
	if j.err != nil {
		return nil, false, j.err
	}
	v, found, err := lookup(j.outer, name)
	if err != nil {
		return nil, false, err
	}
	if found && v != nil {
		return v, true, nil
	}
	for i, inner := range j.inners {
		if inner == nil || !j.positioned[i] {
			continue
		}
		iv, ifound, err := lookup(inner, name)
		if err != nil {
			return nil, false, err
		}
		if ifound {
			return iv, true, nil
		}
	}
	return v, found, nil
}

// Metadata implements Cursor: the outer columns followed by each inner
// table's columns.
func (j *JoinCursor) Metadata() ([]*Column, error) {
	if j.err != nil {
		return nil, j.err
	}
	if j.metadata != nil {
		return j.metadata, nil
	}

	outer, err := j.outer.Metadata()
	if err != nil {
		return nil, j.fail(err)
	}
	metadata := append([]*Column{}, outer...)
	widths := []int{len(outer)}
	for _, src := range j.joins {
		inner, err := src.Metadata()
		if err != nil {
			return nil, j.fail(err)
		}
		metadata = append(metadata, inner...)
		widths = append(widths, len(inner))
	}
	j.metadata, j.widths = metadata, widths
	return j.metadata, nil
}

// Reset implements Cursor
func (j *JoinCursor) Reset() error {
	if j.err != nil {
		return j.err
	}
	j.closeInners()
	j.fetchOuter = true
	return j.outer.Reset()
}

// Close implements Cursor
func (j *JoinCursor) Close() error {
	j.closeInners()
	return j.outer.Close()
}
