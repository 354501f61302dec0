package query

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeExpression(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		known []string
		want  string
	}{
		{"comparison", "a = 1 AND b <> 'x'", nil, `a == 1.0 && b != "x"`},
		{"or and not", "NOT a OR b != 2.5", nil, `! a || b != 2.5`},
		{"prefix like", "name LIKE 'al%'", nil, `name.startsWith("al")`},
		{"suffix like", "name LIKE '%ce'", nil, `name.endsWith("ce")`},
		{"substring like", "name like '%li%'", nil, `name.contains("li")`},
		{"exact like", "name LIKE 'bob'", nil, `(name == "bob")`},
		{"match all like", "name LIKE '%'", nil, `(name != null)`},
		{"wildcard like", "code LIKE 'a_c%'", nil, `code.matches("(?s)^a.c.*$")`},
		{"not like", "name NOT LIKE 'a%'", nil, `!name.startsWith("a")`},
		{"between", "age BETWEEN 20 AND 30", nil, `(age >= 20.0 && age <= 30.0)`},
		{"negative bound", "t BETWEEN -5 AND 5", nil, `(t >= -5.0 && t <= 5.0)`},
		{"in", "x IN (1, 2)", nil, `(x in [1.0, 2.0])`},
		{"not in", "x NOT IN ('a', 'b')", nil, `!(x in ["a", "b"])`},
		{"is null", "x IS NULL", nil, `(x == null)`},
		{"is not null", "x IS NOT NULL", nil, `(x != null)`},
		{"function", "UPPER(name) = 'BOB'", nil, `upper(name) == "BOB"`},
		{"arithmetic", "(a + b) * 2", nil, `(a + b) * 2.0`},
		{"quoted name", `"first name" = 'a'`, nil, `_col0 == "a"`},
		{"known name", "first name = 'a'", []string{"first name"}, `_col0 == "a"`},
		{"qualified name", "u.age > 1", nil, `_col0 > 1.0`},
		{"reserved word", "`in` = 1", nil, `_col0 == 1.0`},
		{"escaped quote", "s = 'it''s'", nil, `s == "it's"`},
		{"receiver call", "name.startsWith('a')", nil, `name.startsWith("a")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := normalizeExpression(tt.expr, tt.known)
			if err != nil {
				t.Fatalf("normalizeExpression() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("normalizeExpression(%q) = %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

func TestNormalizeExpression_Bindings(t *testing.T) {
	_, bindings, err := normalizeExpression(`u.age > 1 AND "first name" = 'x' AND u.age < 9 AND city = 'y'`, nil)
	if err != nil {
		t.Fatalf("normalizeExpression() error = %v", err)
	}
	want := []binding{
		{Column: "u.age", Ident: "_col0"},
		{Column: "first name", Ident: "_col1"},
		{Column: "city", Ident: "city"},
	}
	if !reflect.DeepEqual(bindings, want) {
		t.Errorf("bindings = %v, want %v", bindings, want)
	}
}

func TestNormalizeExpression_Errors(t *testing.T) {
	tests := []string{
		"a = 'unterminated",
		"a BETWEEN 1 OR 2",
		"a LIKE b",
		"a IS 5",
		"(a = 1",
		"a & b",
		"a IN 1",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			if _, _, err := normalizeExpression(expr, nil); err == nil {
				t.Errorf("normalizeExpression(%q) expected error, got nil", expr)
			}
		})
	}
}

func TestExpression_Eval(t *testing.T) {
	row := map[string]interface{}{
		"name":       "alice",
		"age":        int64(41),
		"score":      int64(5),
		"ratio":      0.25,
		"first name": "Ann",
		"u.city":     "paris",
		"missing":    nil,
	}

	tests := []struct {
		expr string
		want interface{}
	}{
		{"age + 1", int64(42)},
		{"score / 2", 2.5},
		{"ratio * 4", int64(1)},
		{"upper(name)", "ALICE"},
		{"LOWER(\"first name\")", "ann"},
		{"length(name)", int64(5)},
		{"mod(7, 3)", int64(1)},
		{"pow(2, 10)", int64(1024)},
		{"round(2.6)", int64(3)},
		{"abs(-3)", int64(3)},
		{"trim('  x ')", "x"},
		{"reverse(name)", "ecila"},
		{"name LIKE 'a%'", true},
		{"name LIKE '_lic_'", true},
		{"name NOT LIKE '%z%'", true},
		{"age BETWEEN 40 AND 41", true},
		{"age IN (1, 41)", true},
		{"u.city = 'paris'", true},
		{"missing IS NULL", true},
		{"name IS NOT NULL AND age > 40", true},
		{"age > 40 ? 'old' : 'young'", "old"},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			x, err := e.Compile(tt.expr, "first name")
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := x.EvalMap(row)
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Eval(%q) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestExpression_NullOperands(t *testing.T) {
	row := map[string]interface{}{"age": int64(41), "name": "alice"}

	tests := []struct {
		expr string
		want interface{}
	}{
		{"missing > 30", nil},
		{"missing + 1", nil},
		{"upper(missing)", nil},
		{"missing > 30 OR age > 40", true},
		{"missing IS NULL", true},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			x, err := e.Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := x.EvalMap(row)
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Eval(%q) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}

	t.Run("predicate", func(t *testing.T) {
		x, err := e.Compile("missing > 30")
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		ok, err := x.Test(func(string) (interface{}, error) { return nil, nil })
		if err != nil || ok {
			t.Errorf("Test() = %v, %v, want false, nil", ok, err)
		}
	})
}

func TestExpression_LargeIntegers(t *testing.T) {
	const big = int64(1<<53 + 1)
	row := map[string]interface{}{"id": big, "small": int64(7)}

	tests := []struct {
		expr string
		want interface{}
	}{
		{"id = 9007199254740992", false},
		{"id = 9007199254740993", true},
		{"id > 9007199254740992", true},
		{"id + 1", big + 1},
		{"id - small", big - 7},
		{"abs(id)", big},
		{"mod(id, 2)", int64(1)},
		{"id IN (9007199254740992, 9007199254740993)", true},
		{"small = 9007199254740993", false},
		{"small * 2", int64(14)},
		{"small / 2", 3.5},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			x, err := e.Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := x.EvalMap(row)
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Eval(%q) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestExpression_Variables(t *testing.T) {
	x, err := NewEvaluator().Compile("a + b > u.c AND upper(d) = 'X'")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	want := []string{"a", "b", "u.c", "d"}
	if got := x.Variables(); !reflect.DeepEqual(got, want) {
		t.Errorf("Variables() = %v, want %v", got, want)
	}
}

func TestExpression_Errors(t *testing.T) {
	e := NewEvaluator()

	t.Run("compile", func(t *testing.T) {
		_, err := e.Compile("age >")
		if !errors.Is(err, ErrExpressionEvaluation) {
			t.Fatalf("Compile() error = %v, want %v", err, ErrExpressionEvaluation)
		}
		var qe *Error
		if !errors.As(err, &qe) || qe.Expression != "age >" {
			t.Errorf("error expression = %v, want %q", qe, "age >")
		}
	})

	t.Run("unknown function", func(t *testing.T) {
		if _, err := e.Compile("nosuch(age)"); !errors.Is(err, ErrExpressionEvaluation) {
			t.Errorf("Compile() error = %v, want %v", err, ErrExpressionEvaluation)
		}
	})

	t.Run("non-boolean predicate", func(t *testing.T) {
		x, err := e.Compile("age + 1")
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		_, err = x.Test(func(string) (interface{}, error) { return int64(1), nil })
		if !errors.Is(err, ErrExpressionEvaluation) {
			t.Errorf("Test() error = %v, want %v", err, ErrExpressionEvaluation)
		}
	})

	t.Run("runtime", func(t *testing.T) {
		x, err := e.Compile("mod(a, 0)")
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if _, err := x.EvalMap(map[string]interface{}{"a": int64(1)}); !errors.Is(err, ErrExpressionEvaluation) {
			t.Errorf("Eval() error = %v, want %v", err, ErrExpressionEvaluation)
		}
	})
}

func TestEvaluator_Cache(t *testing.T) {
	e := NewEvaluator()
	a, err := e.Compile("x > 1")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	b, err := e.Compile("x > 1")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if a != b {
		t.Errorf("Compile() returned a new program for a cached expression")
	}
}
