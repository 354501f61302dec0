// Package store defines the capability contract the query engine consumes
// from a schemaless key-value store.
//
// The store offers exactly five primitives: point get-by-key, batch
// get-by-keys, a single-predicate secondary-index query, a full scan of a
// set, and write-by-key. Everything relational is built on top of these by
// the query package.
//
// Records live in a namespace (a catalog) and a set (a table). Each record is
// identified by a Key and carries a map of bins (named fields).
package store

import (
	"context"
	"fmt"
)

// Key identifies a single record.
//
// Value must be a string, an int64 (other integer types are normalized by
// NewKey) or a []byte.
type Key struct {
	Namespace string
	Set       string
	Value     interface{}
}

// NewKey builds a key, normalizing integer values to int64.
//
// Returns an error if value is not a string, integer or []byte.
func NewKey(namespace, set string, value interface{}) (Key, error) {
	switch v := value.(type) {
	case string, []byte:
		return Key{Namespace: namespace, Set: set, Value: v}, nil
	case int:
		return Key{Namespace: namespace, Set: set, Value: int64(v)}, nil
	case int8:
		return Key{Namespace: namespace, Set: set, Value: int64(v)}, nil
	case int16:
		return Key{Namespace: namespace, Set: set, Value: int64(v)}, nil
	case int32:
		return Key{Namespace: namespace, Set: set, Value: int64(v)}, nil
	case int64:
		return Key{Namespace: namespace, Set: set, Value: v}, nil
	case uint8:
		return Key{Namespace: namespace, Set: set, Value: int64(v)}, nil
	case uint16:
		return Key{Namespace: namespace, Set: set, Value: int64(v)}, nil
	case uint32:
		return Key{Namespace: namespace, Set: set, Value: int64(v)}, nil
	default:
		return Key{}, fmt.Errorf("unsupported key type %T", value)
	}
}

// Digest returns a comparable representation of the key value, suitable for
// use as a map key.
func (k Key) Digest() string {
	switch v := k.Value.(type) {
	case []byte:
		return "b:" + string(v)
	case string:
		return "s:" + v
	default:
		return fmt.Sprintf("i:%v", v)
	}
}

// String implements fmt.Stringer
func (k Key) String() string {
	return fmt.Sprintf("%s.%s[%v]", k.Namespace, k.Set, k.Value)
}

// Record is a single stored record: its key and its bins.
//
// Bin values are one of nil, int64, float64, string, []byte,
// []interface{} or map[string]interface{}.
type Record struct {
	Key  Key
	Bins map[string]interface{}
}

// RecordStream iterates over records returned by Query or Scan.
//
// Usage mirrors database/sql.Rows: call Next until it returns false, then
// check Err. Close must always be called.
type RecordStream interface {
	Next() bool
	Record() *Record
	Err() error
	Close() error
}

// Client is the capability contract of the underlying store.
//
// A nil or empty bins list requests all bins.
type Client interface {
	// Get returns the record for key, or nil if it does not exist.
	Get(ctx context.Context, key Key, bins []string) (*Record, error)

	// BatchGet returns one entry per requested key, in the same order,
	// with nil entries for missing keys.
	BatchGet(ctx context.Context, keys []Key, bins []string) ([]*Record, error)

	// Query streams the records of a set matching at most one filter.
	// A nil filter behaves like Scan.
	Query(ctx context.Context, namespace, set string, filter *Filter, bins []string) (RecordStream, error)

	// Scan streams every record of a set.
	Scan(ctx context.Context, namespace, set string, bins []string) (RecordStream, error)

	// Put writes the given bins under key, creating or replacing the record.
	Put(ctx context.Context, key Key, bins map[string]interface{}) error
}

// IndexChecker is implemented by stores that can report which bins carry
// a secondary index. Stores that do not implement it are assumed to index
// every bin.
type IndexChecker interface {
	Indexed(namespace, set, bin string) bool
}
