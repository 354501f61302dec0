// Package memstore is an in-memory implementation of store.Client.
//
// It keeps records per namespace and set in insertion order, tracks which
// bins carry a secondary index, and enforces that Query filters only on
// indexed bins, like a real store would. It is safe for concurrent use.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/vegasq/kvsql/store"
)

type bucket struct {
	keys    []store.Key
	records map[string]map[string]interface{}
}

// Store is an in-memory key-value store.
type Store struct {
	mu      sync.RWMutex
	sets    map[string]*bucket
	indexes map[string]bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sets:    make(map[string]*bucket),
		indexes: make(map[string]bool),
	}
}

func qualify(namespace, name string) string {
	return namespace + "." + name
}

// CreateIndex registers a secondary index on a bin.
func (s *Store) CreateIndex(namespace, setName, bin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[qualify(namespace, setName)+"."+bin] = true
}

// Indexed implements store.IndexChecker
func (s *Store) Indexed(namespace, set, bin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[qualify(namespace, set)+"."+bin]
}

// Get implements store.Client
func (s *Store) Get(ctx context.Context, key store.Key, bins []string) (*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lookup(key, bins), nil
}

// BatchGet implements store.Client
func (s *Store) BatchGet(ctx context.Context, keys []store.Key, bins []string) ([]*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*store.Record, len(keys))
	for i, key := range keys {
		records[i] = s.lookup(key, bins)
	}
	return records, nil
}

// Query implements store.Client
func (s *Store) Query(ctx context.Context, namespace, setName string, filter *store.Filter, bins []string) (store.RecordStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter != nil && !s.indexes[qualify(namespace, setName)+"."+filter.Bin()] {
		return nil, fmt.Errorf("index not found for bin %q in %s", filter.Bin(), qualify(namespace, setName))
	}
	return s.snapshot(ctx, namespace, setName, filter, bins), nil
}

// Scan implements store.Client
func (s *Store) Scan(ctx context.Context, namespace, setName string, bins []string) (store.RecordStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot(ctx, namespace, setName, nil, bins), nil
}

// Put implements store.Client
func (s *Store) Put(ctx context.Context, key store.Key, bins map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := store.NewKey(key.Namespace, key.Set, key.Value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := qualify(key.Namespace, key.Set)
	t, ok := s.sets[name]
	if !ok {
		t = &bucket{records: make(map[string]map[string]interface{})}
		s.sets[name] = t
	}

	// store a copy to avoid external modification
	stored := make(map[string]interface{}, len(bins))
	for k, v := range bins {
		stored[k] = v
	}

	digest := normalized.Digest()
	if _, exists := t.records[digest]; !exists {
		t.keys = append(t.keys, normalized)
	}
	t.records[digest] = stored
	return nil
}

// Len returns the number of records in a set.
func (s *Store) Len(namespace, setName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.sets[qualify(namespace, setName)]; ok {
		return len(t.keys)
	}
	return 0
}

// lookup must be called with the read lock held.
func (s *Store) lookup(key store.Key, bins []string) *store.Record {
	normalized, err := store.NewKey(key.Namespace, key.Set, key.Value)
	if err != nil {
		return nil
	}
	t, ok := s.sets[qualify(key.Namespace, key.Set)]
	if !ok {
		return nil
	}
	stored, ok := t.records[normalized.Digest()]
	if !ok {
		return nil
	}
	return &store.Record{Key: normalized, Bins: project(stored, bins)}
}

// snapshot must be called with the read lock held.
func (s *Store) snapshot(ctx context.Context, namespace, setName string, filter *store.Filter, bins []string) *stream {
	st := &stream{ctx: ctx, pos: -1}
	t, ok := s.sets[qualify(namespace, setName)]
	if !ok {
		return st
	}
	for _, key := range t.keys {
		stored := t.records[key.Digest()]
		if filter != nil {
			v, ok := stored[filter.Bin()]
			if !ok || !filter.Matches(v) {
				continue
			}
		}
		st.records = append(st.records, &store.Record{Key: key, Bins: project(stored, bins)})
	}
	return st
}

func project(stored map[string]interface{}, bins []string) map[string]interface{} {
	out := make(map[string]interface{}, len(stored))
	if len(bins) == 0 {
		for k, v := range stored {
			out[k] = v
		}
		return out
	}
	for _, bin := range bins {
		if v, ok := stored[bin]; ok {
			out[bin] = v
		}
	}
	return out
}

type stream struct {
	ctx     context.Context
	records []*store.Record
	pos     int
	err     error
	closed  bool
}

func (s *stream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.pos++
	return s.pos < len(s.records)
}

func (s *stream) Record() *store.Record {
	if s.pos < 0 || s.pos >= len(s.records) {
		return nil
	}
	return s.records[s.pos]
}

func (s *stream) Err() error {
	return s.err
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}
