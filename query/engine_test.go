package query

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/vegasq/kvsql/store"
	"github.com/vegasq/kvsql/store/memstore"
)

func TestEngine_Select(t *testing.T) {
	tests := []struct {
		name string
		stmt *Statement
		col  string
		want []interface{}
	}{
		{
			name: "point key",
			stmt: &Statement{Table: "users", Columns: cols("PK", "name"), Where: Eq("PK", int64(2))},
			col:  "name",
			want: []interface{}{"bob"},
		},
		{
			name: "missing key",
			stmt: &Statement{Table: "users", Columns: cols("name"), Where: Eq("PK", int64(99))},
			col:  "name",
			want: []interface{}{},
		},
		{
			name: "batch keys skip missing",
			stmt: &Statement{Table: "users", Columns: cols("name"), Where: In("PK", int64(5), int64(99), int64(1))},
			col:  "name",
			want: []interface{}{"eve", "alice"},
		},
		{
			name: "index range with residual",
			stmt: &Statement{Table: "users", Columns: cols("name"), Where: And(Gt("age", int64(26)), Eq("city", "paris"))},
			col:  "name",
			want: []interface{}{"alice", "charlie"},
		},
		{
			name: "unindexed equality",
			stmt: &Statement{Table: "users", Columns: cols("PK"), Where: Eq("name", "diana")},
			col:  "PK",
			want: []interface{}{int64(4)},
		},
		{
			name: "key inequality",
			stmt: &Statement{Table: "users", Columns: cols("PK"), Where: Ne("PK", int64(1)), Limit: 2},
			col:  "PK",
			want: []interface{}{int64(2), int64(3)},
		},
		{
			name: "free-form filter",
			stmt: &Statement{Table: "users", Columns: cols("name"), Filter: "name LIKE '%e' AND score > 80"},
			col:  "name",
			want: []interface{}{"alice", "charlie"},
		},
		{
			name: "order by hidden column with offset and limit",
			stmt: &Statement{
				Table:   "users",
				Columns: cols("name"),
				OrderBy: []OrderItem{{Column: "age", Desc: true}},
				Offset:  1,
				Limit:   2,
			},
			col:  "name",
			want: []interface{}{"charlie", "alice"},
		},
		{
			name: "distinct",
			stmt: &Statement{Table: "users", Columns: cols("city"), Distinct: true, OrderBy: []OrderItem{{Column: "city"}}},
			col:  "city",
			want: []interface{}{"berlin", "paris", "rome"},
		},
		{
			name: "expression column",
			stmt: &Statement{
				Table:   "users",
				Columns: []*Column{NewExpressionColumn("next", "age + 1")},
				Where:   Eq("PK", int64(1)),
			},
			col:  "next",
			want: []interface{}{int64(31)},
		},
		{
			name: "alias",
			stmt: &Statement{Table: "users", Alias: "u", Columns: []*Column{NewColumn("name").As("who")}, Where: Eq("name", "bob").Of("u")},
			col:  "who",
			want: []interface{}{"bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			rows := run(t, e, tt.stmt)
			if got := column(rows, tt.col); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s = %v, want %v", tt.col, got, tt.want)
			}
		})
	}
}

func TestEngine_FilterMissingBin(t *testing.T) {
	e, s := newTestEngine(t)
	putAll(t, s, "users", []fixtureRecord{{int64(6), map[string]interface{}{"name": "frank"}}})

	t.Run("predicate", func(t *testing.T) {
		rows := run(t, e, &Statement{Table: "users", Columns: cols("name"), Filter: "age > 30"})
		if got, want := column(rows, "name"), []interface{}{"charlie", "eve"}; !reflect.DeepEqual(got, want) {
			t.Errorf("name = %v, want %v", got, want)
		}
	})

	t.Run("computed column", func(t *testing.T) {
		rows := run(t, e, &Statement{
			Table:   "users",
			Columns: []*Column{NewColumn("name"), NewExpressionColumn("next", "age + 1")},
			Where:   Eq("PK", int64(6)),
		})
		if len(rows) != 1 || rows[0]["next"] != nil {
			t.Errorf("rows = %v, want one row with a null next", rows)
		}
	})
}

func TestEngine_FilterLargeKeys(t *testing.T) {
	e, s := newTestEngine(t)
	putAll(t, s, "events", []fixtureRecord{
		{int64(1), map[string]interface{}{"seq": int64(1<<53 + 1)}},
		{int64(2), map[string]interface{}{"seq": int64(1 << 53)}},
		{int64(3), map[string]interface{}{"seq": int64(9)}},
	})

	tests := []struct {
		filter string
		want   []interface{}
	}{
		{"seq = 9007199254740993", []interface{}{int64(1)}},
		{"seq = 9007199254740992", []interface{}{int64(2)}},
		{"seq > 9007199254740992", []interface{}{int64(1)}},
		{"seq < 10", []interface{}{int64(3)}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			rows := run(t, e, &Statement{Table: "events", Columns: cols("PK"), Filter: tt.filter})
			if got := column(rows, "PK"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PK = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_IndexRangeOnDoubles(t *testing.T) {
	tests := []struct {
		name  string
		where *Condition
		want  []interface{}
	}{
		{"non-integral lower bound", Ge("score", 95.5), []interface{}{"alice"}},
		{"non-integral strict lower bound", Gt("score", 82.4), []interface{}{"alice", "bob", "charlie", "diana"}},
		{"non-integral upper bound", Lt("score", 82.5), []interface{}{"eve"}},
		{"whole float bound", Le("score", 88.0), []interface{}{"bob", "charlie", "eve"}},
		{"non-integral between", Between("score", 82.5, 91.0), []interface{}{"bob", "charlie", "diana"}},
		// an integer bound is rewritten to the integer range [83, MAX]
		{"integer strict lower bound", Gt("score", int64(82)), []interface{}{"alice", "charlie", "diana"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := newTestEngine(t)
			s.CreateIndex(testNamespace, "users", "score")
			stmt := &Statement{Table: "users", Columns: cols("name"), Where: tt.where}

			plan, err := e.Explain(stmt)
			if err != nil {
				t.Fatalf("Explain() error = %v", err)
			}
			if _, ok := plan.Access.(IndexFiltered); !ok {
				t.Fatalf("Explain() = %s, want an index plan", plan)
			}
			if got := column(run(t, e, stmt), "name"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("name = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_SelectAll(t *testing.T) {
	e, _ := newTestEngine(t)
	cursor, err := e.Compile(context.Background(), &Statement{Table: "users", Where: Eq("PK", int64(3))})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	columns, rows, err := ReadAll(cursor)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	var names []string
	var types []Type
	for _, c := range columns {
		names = append(names, c.OutputName())
		types = append(types, c.Type())
	}
	wantNames := []string{"PK", "age", "city", "name", "score"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("columns = %v, want %v", names, wantNames)
	}
	wantTypes := []Type{TypeLong, TypeLong, TypeString, TypeString, TypeDouble}
	if !reflect.DeepEqual(types, wantTypes) {
		t.Errorf("types = %v, want %v", types, wantTypes)
	}
	want := []Row{{int64(3), int64(35), "paris", "charlie", 88.0}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestEngine_Aggregate(t *testing.T) {
	e, _ := newTestEngine(t)
	rows := run(t, e, &Statement{
		Table: "users",
		Columns: []*Column{
			NewGroupColumn("city"),
			NewAggregateColumn("count(*)").As("n"),
			NewAggregateColumn("sum(age)"),
			NewAggregateColumn("avg(score)"),
			NewAggregateColumn("min(name)"),
			NewAggregateColumn("max(age)"),
		},
		OrderBy: []OrderItem{{Column: "city"}},
	})

	want := []map[string]interface{}{
		{"city": "berlin", "n": int64(2), "sum(age)": int64(67), "avg(score)": 79.5, "min(name)": "bob", "max(age)": int64(42)},
		{"city": "paris", "n": int64(2), "sum(age)": int64(65), "avg(score)": 91.75, "min(name)": "alice", "max(age)": int64(35)},
		{"city": "rome", "n": int64(1), "sum(age)": int64(28), "avg(score)": 91.0, "min(name)": "diana", "max(age)": int64(28)},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows =\n%v\nwant\n%v", rows, want)
	}
}

func TestEngine_AggregateHaving(t *testing.T) {
	e, _ := newTestEngine(t)
	rows := run(t, e, &Statement{
		Table: "users",
		Columns: []*Column{
			NewGroupColumn("city"),
			NewAggregateColumn("count(*)").As("n"),
		},
		Where:   Ge("age", int64(26)),
		Having:  "n >= 2",
		OrderBy: []OrderItem{{Column: "n", Desc: true}, {Column: "city"}},
	})
	want := []map[string]interface{}{{"city": "paris", "n": int64(2)}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestEngine_AggregateEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	rows := run(t, e, &Statement{
		Table:   "users",
		Columns: []*Column{NewAggregateColumn("count(*)"), NewAggregateColumn("sum(age)")},
		Where:   Gt("age", int64(100)),
	})
	want := []map[string]interface{}{{"count(*)": int64(0), "sum(age)": nil}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func ordersJoinUsers(skip bool) *Statement {
	return &Statement{
		Table:   "orders",
		Alias:   "o",
		Columns: cols("PK", "amount"),
		Joins: []Join{{
			Table:         "users",
			Alias:         "u",
			Columns:       cols("name"),
			On:            Eq("PK", ColumnRef{Name: "user_id"}),
			SkipIfMissing: skip,
		}},
	}
}

func TestEngine_Join(t *testing.T) {
	tests := []struct {
		name string
		stmt *Statement
		want []map[string]interface{}
	}{
		{
			name: "inner",
			stmt: ordersJoinUsers(true),
			want: []map[string]interface{}{
				{"PK": int64(100), "amount": int64(25), "name": "alice"},
				{"PK": int64(101), "amount": int64(10), "name": "alice"},
				{"PK": int64(102), "amount": int64(100), "name": "charlie"},
			},
		},
		{
			name: "left",
			stmt: ordersJoinUsers(false),
			want: []map[string]interface{}{
				{"PK": int64(100), "amount": int64(25), "name": "alice"},
				{"PK": int64(101), "amount": int64(10), "name": "alice"},
				{"PK": int64(102), "amount": int64(100), "name": "charlie"},
				{"PK": int64(103), "amount": int64(5), "name": nil},
			},
		},
		{
			name: "condition on joined table",
			stmt: func() *Statement {
				s := ordersJoinUsers(true)
				s.Where = And(Eq("name", "alice").Of("u"), Ge("amount", int64(20)))
				return s
			}(),
			want: []map[string]interface{}{
				{"PK": int64(100), "amount": int64(25), "name": "alice"},
			},
		},
		{
			name: "ordered",
			stmt: func() *Statement {
				s := ordersJoinUsers(true)
				s.OrderBy = []OrderItem{{Column: "amount"}}
				return s
			}(),
			want: []map[string]interface{}{
				{"PK": int64(101), "amount": int64(10), "name": "alice"},
				{"PK": int64(100), "amount": int64(25), "name": "alice"},
				{"PK": int64(102), "amount": int64(100), "name": "charlie"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			rows := run(t, e, tt.stmt)
			if !reflect.DeepEqual(rows, tt.want) {
				t.Errorf("rows =\n%v\nwant\n%v", rows, tt.want)
			}
		})
	}
}

func TestEngine_JoinByIndex(t *testing.T) {
	e, _ := newTestEngine(t)
	rows := run(t, e, &Statement{
		Table:   "users",
		Columns: cols("name"),
		Where:   In("PK", int64(1), int64(2)),
		Joins: []Join{{
			Table:   "orders",
			Columns: []*Column{NewColumn("status")},
			On:      Eq("user_id", ColumnRef{Name: "PK"}),
		}},
	})
	want := []map[string]interface{}{
		{"name": "alice", "status": "shipped"},
		{"name": "alice", "status": "pending"},
		{"name": "bob", "status": nil},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows =\n%v\nwant\n%v", rows, want)
	}
}

func TestEngine_Metadata(t *testing.T) {
	e, _ := newTestEngine(t)
	columns, err := e.Metadata(context.Background(), ordersJoinUsers(true))
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	var got []string
	for _, c := range columns {
		got = append(got, c.String()+":"+c.Type().String())
	}
	want := []string{"o.PK:LONG", "o.amount:LONG", "u.name:STRING"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Metadata() = %v, want %v", got, want)
	}
}

func TestEngine_TypeConflict(t *testing.T) {
	s := memstore.New()
	putAll(t, s, "mixed", []fixtureRecord{
		{int64(1), map[string]interface{}{"v": "text"}},
		{int64(2), map[string]interface{}{"v": int64(7)}},
	})

	stmt := func() *Statement { return &Statement{Table: "mixed", Columns: cols("v")} }

	lenient := NewEngine(s, Options{Namespace: testNamespace, SampleSize: 1})
	if _, err := lenient.Metadata(context.Background(), stmt()); err != nil {
		t.Fatalf("Metadata() with one sample error = %v", err)
	}

	strict := NewEngine(s, Options{Namespace: testNamespace, SampleSize: 2})
	_, err := strict.Metadata(context.Background(), stmt())
	if !errors.Is(err, ErrTypeConflict) {
		t.Errorf("Metadata() error = %v, want %v", err, ErrTypeConflict)
	}
}

func TestEngine_LossyOrder(t *testing.T) {
	s := memstore.New()
	var records []fixtureRecord
	for i, v := range []int64{5, 1, 4, 2, 3} {
		records = append(records, fixtureRecord{int64(i + 1), map[string]interface{}{"v": v}})
	}
	putAll(t, s, "nums", records)

	stmt := func() *Statement {
		return &Statement{Table: "nums", Columns: cols("v"), OrderBy: []OrderItem{{Column: "v"}}, Limit: 2}
	}

	exact := run(t, NewEngine(s, Options{Namespace: testNamespace}), stmt())
	if got, want := column(exact, "v"), []interface{}{int64(1), int64(2)}; !reflect.DeepEqual(got, want) {
		t.Errorf("exact order = %v, want %v", got, want)
	}

	lossy := run(t, NewEngine(s, Options{Namespace: testNamespace, LossyOrder: true}), stmt())
	if got, want := column(lossy, "v"), []interface{}{int64(1), int64(3)}; !reflect.DeepEqual(got, want) {
		t.Errorf("lossy order = %v, want %v", got, want)
	}

	paged := run(t, NewEngine(s, Options{Namespace: testNamespace, LossyOrder: true, PageSize: 3}), &Statement{
		Table: "nums", Columns: cols("v"), OrderBy: []OrderItem{{Column: "v"}},
	})
	if got, want := column(paged, "v"), []interface{}{int64(1), int64(2), int64(3)}; !reflect.DeepEqual(got, want) {
		t.Errorf("lossy order without limit = %v, want %v", got, want)
	}
}

func TestEngine_Explain(t *testing.T) {
	e, _ := newTestEngine(t)
	tests := []struct {
		name string
		stmt *Statement
		want string
	}{
		{"key", &Statement{Table: "users", Where: Eq("PK", int64(1))}, "PointKey(1)"},
		{"indexed", &Statement{Table: "users", Where: Eq("city", "rome")}, "IndexFiltered(city = rome)"},
		{"unindexed", &Statement{Table: "users", Where: Eq("name", "x")}, "Scan + residual name = 'x'"},
		{"join condition left out", func() *Statement {
			s := ordersJoinUsers(true)
			s.Where = Eq("name", "alice").Of("u")
			return s
		}(), "Scan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := e.Explain(tt.stmt)
			if err != nil {
				t.Fatalf("Explain() error = %v", err)
			}
			if plan.String() != tt.want {
				t.Errorf("Explain() = %q, want %q", plan, tt.want)
			}
		})
	}
}

func TestEngine_Errors(t *testing.T) {
	tests := []struct {
		name string
		stmt *Statement
		want error
	}{
		{"no table", &Statement{}, ErrInvalidStatement},
		{"duplicate alias", &Statement{Table: "users", Joins: []Join{{Table: "users"}}}, ErrInvalidStatement},
		{"negative offset", &Statement{Table: "users", Offset: -1}, ErrInvalidStatement},
		{"having without aggregation", &Statement{Table: "users", Having: "x > 1"}, ErrInvalidStatement},
		{"plain column in aggregation", &Statement{Table: "users", Columns: []*Column{NewColumn("name"), NewAggregateColumn("count(*)")}}, ErrInvalidStatement},
		{"joined column in aggregation", &Statement{
			Table:   "orders",
			Columns: []*Column{NewAggregateColumn("count(*)")},
			Joins:   []Join{{Table: "users", Columns: cols("name"), On: Eq("PK", ColumnRef{Name: "user_id"})}},
		}, ErrInvalidStatement},
		{"planning conflict", &Statement{Table: "users", Where: And(Eq("PK", int64(1)), Eq("PK", int64(2)))}, ErrPlanningConflict},
		{"bad expression", &Statement{Table: "users", Columns: []*Column{NewExpressionColumn("x", "age +")}}, ErrExpressionEvaluation},
		{"bad filter", &Statement{Table: "users", Columns: cols("name"), Filter: "name LIKE"}, ErrExpressionEvaluation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			_, err := e.Compile(context.Background(), tt.stmt)
			if !errors.Is(err, tt.want) {
				t.Errorf("Compile() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEngine_StoreFailure(t *testing.T) {
	e := NewEngine(failingClient{}, Options{Namespace: testNamespace})

	// key lookups run during Compile
	_, err := e.Compile(context.Background(), &Statement{Table: "users", Columns: cols("name"), Where: Eq("PK", int64(1))})
	if !errors.Is(err, ErrExecutionFailure) || !errors.Is(err, errStoreDown) {
		t.Errorf("Compile() error = %v, want execution failure wrapping %v", err, errStoreDown)
	}

	// scans start on the first Next
	cursor, err := e.Compile(context.Background(), &Statement{Table: "users", Columns: []*Column{NewColumn("name").WithType(TypeString)}})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := cursor.Next(); !errors.Is(err, ErrExecutionFailure) {
		t.Errorf("Next() error = %v, want %v", err, ErrExecutionFailure)
	}
	if _, err := cursor.Next(); !errors.Is(err, errStoreDown) {
		t.Errorf("Next() after failure error = %v, want %v", err, errStoreDown)
	}
}

func TestEngine_DebugLog(t *testing.T) {
	s := memstore.New()
	putAll(t, s, "users", userRecords)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := NewEngine(s, Options{Namespace: testNamespace, Logger: logger})
	run(t, e, &Statement{Table: "users", Columns: cols("name"), Where: Eq("PK", int64(1))})

	out := buf.String()
	for _, want := range []string{`"msg":"planned statement"`, `"statement_id":`, `"plan":"PointKey(1)"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s does not contain %s", out, want)
		}
	}
}

func TestEngine_Namespace(t *testing.T) {
	s := memstore.New()
	key, _ := store.NewKey("other", "users", int64(1))
	if err := s.Put(context.Background(), key, map[string]interface{}{"name": "zed"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	e := NewEngine(s, Options{Namespace: testNamespace})

	rows := run(t, e, &Statement{Namespace: "other", Table: "users", Columns: cols("name")})
	if got := column(rows, "name"); !reflect.DeepEqual(got, []interface{}{"zed"}) {
		t.Errorf("name = %v, want [zed]", got)
	}
	if rows := run(t, e, &Statement{Table: "users", Columns: cols("name")}); len(rows) != 0 {
		t.Errorf("default namespace rows = %v, want none", rows)
	}
}
