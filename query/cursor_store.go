package query

import (
	"context"

	"github.com/vegasq/kvsql/store"
)

// DefaultSampleSize is the number of records sampled to discover column
// types when none is configured.
const DefaultSampleSize = 1

// source describes where a store-backed cursor reads from.
type source struct {
	ctx        context.Context
	client     store.Client
	namespace  string
	set        string
	alias      string
	columns    []*Column
	sampleSize int
}

// bins returns the bin names to request from the store.
func (s *source) bins() []string {
	var bins []string
	seen := make(map[string]bool)
	for _, c := range s.columns {
		switch c.Role {
		case RoleData, RoleHidden, RoleGroup:
		default:
			continue
		}
		if isPrimaryKey(c.Name) || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		bins = append(bins, c.Name)
	}
	return bins
}

// scanSample reads up to sampleSize records from a separate scan of the set.
func (s *source) scanSample() ([]*store.Record, error) {
	stream, err := s.client.Scan(s.ctx, s.namespace, s.set, s.bins())
	if err != nil {
		return nil, storeError("scan "+s.set, err)
	}
	defer func() { _ = stream.Close() }()

	var records []*store.Record
	for len(records) < s.size() && stream.Next() {
		records = append(records, stream.Record())
	}
	if err := stream.Err(); err != nil {
		return nil, storeError("scan "+s.set, err)
	}
	return records, nil
}

func (s *source) size() int {
	if s.sampleSize <= 0 {
		return DefaultSampleSize
	}
	return s.sampleSize
}

// recordValue reads a column from a store record.
func recordValue(rec *store.Record, col *Column) interface{} {
	switch col.Role {
	case RolePrimaryKey:
		return rec.Key.Value
	case RoleExpression, RoleAggregated:
		return nil
	}
	if isPrimaryKey(col.Name) {
		return rec.Key.Value
	}
	return rec.Bins[col.Name]
}

// recordCursor holds what every store-backed cursor shares: the current
// record, name resolution and lazy type discovery.
type recordCursor struct {
	src     *source
	visible []*Column
	current *store.Record
	sample  func() ([]*store.Record, error)
	typed   bool
	err     error
}

func newRecordCursor(src *source) recordCursor {
	return recordCursor{src: src, visible: visibleColumns(src.columns)}
}

func (r *recordCursor) fail(err error) error {
	if r.err == nil {
		r.err = err
	}
	return r.err
}

// Metadata implements Cursor
func (r *recordCursor) Metadata() ([]*Column, error) {
	if r.err != nil {
		return nil, r.err
	}
	if err := r.discover(); err != nil {
		return nil, r.fail(err)
	}
	return r.visible, nil
}

// discover samples records once to fill in unknown column types. The
// result is frozen for the lifetime of the cursor.
func (r *recordCursor) discover() error {
	if r.typed {
		return nil
	}
	r.typed = true
	if allTyped(r.src.columns) {
		return nil
	}

	sample := r.sample
	if sample == nil {
		sample = r.src.scanSample
	}
	records, err := sample()
	if err != nil {
		return err
	}
	for _, rec := range records {
		for _, col := range r.src.columns {
			v := recordValue(rec, col)
			if v == nil {
				continue
			}
			if err := col.DiscoverType(TypeOf(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Value implements Cursor
func (r *recordCursor) Value(index int) (interface{}, error) {
	if r.current == nil {
		return nil, ErrNoCurrentRow
	}
	if index < 0 || index >= len(r.visible) {
		return nil, invalidStatement("column index %d out of range [0, %d)", index, len(r.visible))
	}
	return recordValue(r.current, r.visible[index]), nil
}

// ValueByName implements Cursor
func (r *recordCursor) ValueByName(name string) (interface{}, error) {
	v, _, err := r.lookup(name)
	return v, err
}

func (r *recordCursor) lookup(name string) (interface{}, bool, error) {
	if r.current == nil {
		return nil, false, ErrNoCurrentRow
	}
	if col := findColumn(r.src.columns, name); col != nil {
		return recordValue(r.current, col), true, nil
	}
	if table, column := splitQualified(name); table != "" {
		if table != r.src.alias && table != r.src.set {
			return nil, false, nil
		}
		name = column
		if col := findColumn(r.src.columns, name); col != nil {
			return recordValue(r.current, col), true, nil
		}
	}
	if isPrimaryKey(name) {
		return r.current.Key.Value, true, nil
	}
	v, ok := r.current.Bins[name]
	return v, ok, nil
}

// keyCursor iterates over records fetched up front by key.
type keyCursor struct {
	recordCursor
	records []*store.Record
	pos     int
}

func newKeyCursor(src *source, records []*store.Record) *keyCursor {
	found := make([]*store.Record, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			found = append(found, rec)
		}
	}
	k := &keyCursor{recordCursor: newRecordCursor(src), records: found, pos: -1}
	k.sample = k.sampleRecords
	return k
}

// sampleRecords prefers the fetched records and falls back to a scan when
// no key matched.
func (k *keyCursor) sampleRecords() ([]*store.Record, error) {
	if len(k.records) == 0 {
		return k.src.scanSample()
	}
	n := k.src.size()
	if n > len(k.records) {
		n = len(k.records)
	}
	return k.records[:n], nil
}

// Next implements Cursor
func (k *keyCursor) Next() (bool, error) {
	if k.err != nil {
		return false, k.err
	}
	if k.pos < len(k.records) {
		k.pos++
	}
	if k.pos >= len(k.records) {
		k.current = nil
		return false, nil
	}
	k.current = k.records[k.pos]
	return true, nil
}

// IsLast implements LastAware
func (k *keyCursor) IsLast() (bool, error) {
	return k.pos == len(k.records)-1, k.err
}

// Reset implements Cursor
func (k *keyCursor) Reset() error {
	k.pos = -1
	k.current = nil
	return k.err
}

// Close implements Cursor
func (k *keyCursor) Close() error {
	k.current = nil
	return nil
}

// streamCursor wraps a streaming fetch from the store.
type streamCursor struct {
	recordCursor
	open   func() (store.RecordStream, error)
	stream store.RecordStream
	done   bool
}

func newStreamCursor(src *source, open func() (store.RecordStream, error)) *streamCursor {
	return &streamCursor{recordCursor: newRecordCursor(src), open: open}
}

// Next implements Cursor
func (s *streamCursor) Next() (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.done {
		return false, nil
	}
	if s.stream == nil {
		stream, err := s.open()
		if err != nil {
			return false, s.fail(storeError("query "+s.src.set, err))
		}
		s.stream = stream
	}
	if s.stream.Next() {
		s.current = s.stream.Record()
		return true, nil
	}
	s.current = nil
	s.done = true
	if err := s.stream.Err(); err != nil {
		return false, s.fail(storeError("read "+s.src.set, err))
	}
	return false, nil
}

// Reset implements Cursor. The fetch is reissued on the next call to Next.
func (s *streamCursor) Reset() error {
	if s.err != nil {
		return s.err
	}
	err := s.Close()
	s.stream = nil
	s.done = false
	return err
}

// Close implements Cursor
func (s *streamCursor) Close() error {
	s.current = nil
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

// openPlan executes an access plan and returns the matching cursor. Point
// and batch lookups are fetched immediately; index queries and scans are
// opened lazily on the first call to Next.
func openPlan(src *source, plan *Plan) (Cursor, error) {
	bins := src.bins()
	switch access := plan.Access.(type) {
	case PointKey:
		rec, err := src.client.Get(src.ctx, access.Key, bins)
		if err != nil {
			return nil, storeError("get "+access.Key.String(), err)
		}
		return newKeyCursor(src, []*store.Record{rec}), nil
	case BatchKeys:
		records, err := src.client.BatchGet(src.ctx, access.Keys, bins)
		if err != nil {
			return nil, storeError("batch get from "+src.set, err)
		}
		return newKeyCursor(src, records), nil
	case IndexFiltered:
		return newStreamCursor(src, func() (store.RecordStream, error) {
			return src.client.Query(src.ctx, src.namespace, src.set, access.Filter, bins)
		}), nil
	case Scan:
		return newStreamCursor(src, func() (store.RecordStream, error) {
			return src.client.Scan(src.ctx, src.namespace, src.set, bins)
		}), nil
	default:
		return nil, invalidStatement("unknown access plan %T", plan.Access)
	}
}
