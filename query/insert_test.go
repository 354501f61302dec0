package query

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/vegasq/kvsql/store"
	"github.com/vegasq/kvsql/store/memstore"
)

func get(t *testing.T, s *memstore.Store, set string, key interface{}) *store.Record {
	t.Helper()
	k, err := store.NewKey(testNamespace, set, key)
	if err != nil {
		t.Fatalf("NewKey(%v) error = %v", key, err)
	}
	rec, err := s.Get(context.Background(), k, nil)
	if err != nil {
		t.Fatalf("Get(%v) error = %v", k, err)
	}
	return rec
}

func TestEngine_Insert(t *testing.T) {
	e, s := newTestEngine(t)
	n, err := e.Insert(context.Background(), &Insert{
		Table:   "people",
		Columns: []string{"pk", "name", "age"},
		Rows: [][]interface{}{
			{int64(1), "ann", int32(31)},
			{7.0, "ben", nil},
		},
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Insert() = %d, want 2", n)
	}
	if got := s.Len(testNamespace, "people"); got != 2 {
		t.Errorf("stored records = %d, want 2", got)
	}

	tests := []struct {
		key  interface{}
		want map[string]interface{}
	}{
		{int64(1), map[string]interface{}{"name": "ann", "age": int64(31)}},
		{int64(7), map[string]interface{}{"name": "ben"}},
	}
	for _, tt := range tests {
		rec := get(t, s, "people", tt.key)
		if rec == nil {
			t.Errorf("record %v not found", tt.key)
			continue
		}
		if !reflect.DeepEqual(rec.Bins, tt.want) {
			t.Errorf("record %v bins = %v, want %v", tt.key, rec.Bins, tt.want)
		}
	}
}

func TestEngine_InsertErrors(t *testing.T) {
	tests := []struct {
		name string
		ins  *Insert
		want error
	}{
		{
			name: "no table",
			ins:  &Insert{Columns: []string{"PK"}, Rows: [][]interface{}{{int64(1)}}},
			want: ErrInvalidStatement,
		},
		{
			name: "missing key column",
			ins:  &Insert{Table: "users", Columns: []string{"name"}, Rows: [][]interface{}{{"x"}}},
			want: ErrMissingRequiredColumn,
		},
		{
			name: "existing key",
			ins:  &Insert{Table: "users", Columns: []string{"PK", "name"}, Rows: [][]interface{}{{int64(6), "new"}, {int64(1), "dup"}}},
			want: ErrDuplicateKey,
		},
		{
			name: "repeated key",
			ins:  &Insert{Table: "users", Columns: []string{"PK", "name"}, Rows: [][]interface{}{{"k", "a"}, {"k", "b"}}},
			want: ErrDuplicateKey,
		},
		{
			name: "unsupported key type",
			ins:  &Insert{Table: "users", Columns: []string{"PK"}, Rows: [][]interface{}{{true}}},
			want: ErrUnsupportedLiteralType,
		},
		{
			name: "fractional key",
			ins:  &Insert{Table: "users", Columns: []string{"PK"}, Rows: [][]interface{}{{1.5}}},
			want: ErrUnsupportedLiteralType,
		},
		{
			name: "key beyond int64",
			ins:  &Insert{Table: "users", Columns: []string{"PK"}, Rows: [][]interface{}{{1e19}}},
			want: ErrUnsupportedLiteralType,
		},
		{
			name: "NaN key",
			ins:  &Insert{Table: "users", Columns: []string{"PK"}, Rows: [][]interface{}{{math.NaN()}}},
			want: ErrUnsupportedLiteralType,
		},
		{
			name: "infinite key",
			ins:  &Insert{Table: "users", Columns: []string{"PK"}, Rows: [][]interface{}{{math.Inf(-1)}}},
			want: ErrUnsupportedLiteralType,
		},
		{
			name: "short row",
			ins:  &Insert{Table: "users", Columns: []string{"PK", "name"}, Rows: [][]interface{}{{int64(8)}}},
			want: ErrInvalidStatement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := newTestEngine(t)
			before := s.Len(testNamespace, "users")
			if _, err := e.Insert(context.Background(), tt.ins); !errors.Is(err, tt.want) {
				t.Fatalf("Insert() error = %v, want %v", err, tt.want)
			}
			if after := s.Len(testNamespace, "users"); after != before {
				t.Errorf("records after failed insert = %d, want %d", after, before)
			}
		})
	}
}

func TestEngine_InsertSkipDuplicates(t *testing.T) {
	e, s := newTestEngine(t)
	n, err := e.Insert(context.Background(), &Insert{
		Table:          "users",
		Columns:        []string{"PK", "name"},
		Rows:           [][]interface{}{{int64(1), "zed"}, {int64(1), "zoe"}},
		SkipDuplicates: true,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Insert() = %d, want 2", n)
	}
	if got := s.Len(testNamespace, "users"); got != len(userRecords) {
		t.Errorf("records = %d, want %d", got, len(userRecords))
	}
	rec := get(t, s, "users", int64(1))
	if want := map[string]interface{}{"name": "zoe"}; !reflect.DeepEqual(rec.Bins, want) {
		t.Errorf("bins = %v, want %v", rec.Bins, want)
	}
}

func TestEngine_InsertStoreFailure(t *testing.T) {
	e := NewEngine(failingClient{}, Options{Namespace: testNamespace})
	_, err := e.Insert(context.Background(), &Insert{
		Table:   "users",
		Columns: []string{"PK"},
		Rows:    [][]interface{}{{int64(1)}},
	})
	if !errors.Is(err, ErrExecutionFailure) || !errors.Is(err, errStoreDown) {
		t.Errorf("Insert() error = %v, want execution failure wrapping %v", err, errStoreDown)
	}
}

func TestEngine_InsertThenSelect(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.Insert(context.Background(), &Insert{
		Table:   "users",
		Columns: []string{"PK", "name", "age", "city"},
		Rows:    [][]interface{}{{int64(6), "frank", int64(33), "rome"}},
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	rows := run(t, e, &Statement{Table: "users", Columns: cols("name"), Where: Eq("city", "rome")})
	if got, want := column(rows, "name"), []interface{}{"diana", "frank"}; !reflect.DeepEqual(got, want) {
		t.Errorf("name = %v, want %v", got, want)
	}
}
