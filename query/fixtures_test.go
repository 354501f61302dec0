package query

import (
	"context"
	"errors"
	"testing"

	"github.com/vegasq/kvsql/store"
	"github.com/vegasq/kvsql/store/memstore"
)

const testNamespace = "test"

type fixtureRecord struct {
	key  interface{}
	bins map[string]interface{}
}

var userRecords = []fixtureRecord{
	{int64(1), map[string]interface{}{"name": "alice", "age": int64(30), "score": 95.5, "city": "paris"}},
	{int64(2), map[string]interface{}{"name": "bob", "age": int64(25), "score": 82.5, "city": "berlin"}},
	{int64(3), map[string]interface{}{"name": "charlie", "age": int64(35), "score": 88.0, "city": "paris"}},
	{int64(4), map[string]interface{}{"name": "diana", "age": int64(28), "score": 91.0, "city": "rome"}},
	{int64(5), map[string]interface{}{"name": "eve", "age": int64(42), "score": 76.5, "city": "berlin"}},
}

var orderRecords = []fixtureRecord{
	{int64(100), map[string]interface{}{"user_id": int64(1), "amount": int64(25), "status": "shipped"}},
	{int64(101), map[string]interface{}{"user_id": int64(1), "amount": int64(10), "status": "pending"}},
	{int64(102), map[string]interface{}{"user_id": int64(3), "amount": int64(100), "status": "shipped"}},
	{int64(103), map[string]interface{}{"user_id": int64(9), "amount": int64(5), "status": "cancelled"}},
}

func putAll(t *testing.T, s *memstore.Store, set string, records []fixtureRecord) {
	t.Helper()
	for _, r := range records {
		key, err := store.NewKey(testNamespace, set, r.key)
		if err != nil {
			t.Fatalf("NewKey(%v) error = %v", r.key, err)
		}
		if err := s.Put(context.Background(), key, r.bins); err != nil {
			t.Fatalf("Put(%v) error = %v", key, err)
		}
	}
}

// newTestEngine returns an engine over users and orders, with indexes on
// users.age, users.city and orders.user_id.
func newTestEngine(t *testing.T) (*Engine, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	putAll(t, s, "users", userRecords)
	putAll(t, s, "orders", orderRecords)
	s.CreateIndex(testNamespace, "users", "age")
	s.CreateIndex(testNamespace, "users", "city")
	s.CreateIndex(testNamespace, "orders", "user_id")
	return NewEngine(s, Options{Namespace: testNamespace}), s
}

// run compiles a statement and drains it.
func run(t *testing.T, e *Engine, stmt *Statement) []map[string]interface{} {
	t.Helper()
	cursor, err := e.Compile(context.Background(), stmt)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	rows, err := ReadMaps(cursor)
	if err != nil {
		t.Fatalf("ReadMaps() error = %v", err)
	}
	return rows
}

// column collects one output column of a result.
func column(rows []map[string]interface{}, name string) []interface{} {
	out := make([]interface{}, len(rows))
	for i, row := range rows {
		out[i] = row[name]
	}
	return out
}

func cols(names ...string) []*Column {
	out := make([]*Column, len(names))
	for i, n := range names {
		out[i] = NewColumn(n)
	}
	return out
}

// listOf builds a ListCursor from column names and rows.
func listOf(names []string, rows ...Row) *ListCursor {
	return NewListCursor(cols(names...), rows)
}

// drain reads every row of a cursor as Rows.
func drain(t *testing.T, c Cursor) []Row {
	t.Helper()
	_, rows, err := ReadAll(c)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return rows
}

// failingClient fails every store call.
type failingClient struct{}

var errStoreDown = errors.New("store is down")

func (failingClient) Get(context.Context, store.Key, []string) (*store.Record, error) {
	return nil, errStoreDown
}

func (failingClient) BatchGet(context.Context, []store.Key, []string) ([]*store.Record, error) {
	return nil, errStoreDown
}

func (failingClient) Query(context.Context, string, string, *store.Filter, []string) (store.RecordStream, error) {
	return nil, errStoreDown
}

func (failingClient) Scan(context.Context, string, string, []string) (store.RecordStream, error) {
	return nil, errStoreDown
}

func (failingClient) Put(context.Context, store.Key, map[string]interface{}) error {
	return errStoreDown
}
