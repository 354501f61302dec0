package query

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestEngine_CompileUnion(t *testing.T) {
	parisOrOld := func(all bool) *Union {
		return &Union{
			All: all,
			Statements: []*Statement{
				{Table: "users", Columns: cols("name"), Where: Eq("city", "paris")},
				{Table: "users", Columns: cols("name"), Where: Ge("age", int64(35))},
			},
		}
	}

	tests := []struct {
		name  string
		union *Union
		want  []interface{}
	}{
		{"distinct", parisOrOld(false), []interface{}{"alice", "charlie", "eve"}},
		{"all", parisOrOld(true), []interface{}{"alice", "charlie", "charlie", "eve"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			cursor, err := e.CompileUnion(context.Background(), tt.union)
			if err != nil {
				t.Fatalf("CompileUnion() error = %v", err)
			}
			rows, err := ReadMaps(cursor)
			if err != nil {
				t.Fatalf("ReadMaps() error = %v", err)
			}
			if got := column(rows, "name"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("name = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_CompileUnionWidensTypes(t *testing.T) {
	e, _ := newTestEngine(t)
	cursor, err := e.CompileUnion(context.Background(), &Union{
		All: true,
		Statements: []*Statement{
			{Table: "users", Columns: cols("age"), Where: Eq("PK", int64(1))},
			{Table: "users", Columns: cols("score"), Where: Eq("PK", int64(1))},
		},
	})
	if err != nil {
		t.Fatalf("CompileUnion() error = %v", err)
	}
	columns, rows, err := ReadAll(cursor)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if columns[0].OutputName() != "age" || columns[0].Type() != TypeDouble {
		t.Errorf("column = %s %s, want age DOUBLE", columns[0].OutputName(), columns[0].Type())
	}
	want := []Row{{int64(30)}, {95.5}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestEngine_CompileUnionErrors(t *testing.T) {
	tests := []struct {
		name  string
		union *Union
		want  error
	}{
		{"empty", &Union{}, ErrInvalidStatement},
		{"column count", &Union{Statements: []*Statement{
			{Table: "users", Columns: cols("name")},
			{Table: "users", Columns: cols("name", "age")},
		}}, ErrInvalidStatement},
		{"invalid member", &Union{Statements: []*Statement{
			{Table: "users", Columns: cols("name")},
			{Columns: cols("name")},
		}}, ErrInvalidStatement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			if _, err := e.CompileUnion(context.Background(), tt.union); !errors.Is(err, tt.want) {
				t.Errorf("CompileUnion() error = %v, want %v", err, tt.want)
			}
		})
	}
}
