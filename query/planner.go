package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/vegasq/kvsql/store"
)

// AccessPlan is the store access strategy selected for a statement. It is
// one of PointKey, BatchKeys, IndexFiltered or Scan.
type AccessPlan interface {
	accessPlan()
	String() string
}

// PointKey fetches a single record by key.
type PointKey struct {
	Key store.Key
}

// BatchKeys fetches a fixed list of records by key.
type BatchKeys struct {
	Keys []store.Key
}

// IndexFiltered streams the records matching one secondary-index filter.
type IndexFiltered struct {
	Filter *store.Filter
}

// Scan streams every record of the set.
type Scan struct{}

func (PointKey) accessPlan()      {}
func (BatchKeys) accessPlan()     {}
func (IndexFiltered) accessPlan() {}
func (Scan) accessPlan()          {}

func (p PointKey) String() string { return fmt.Sprintf("PointKey(%v)", p.Key.Value) }

func (p BatchKeys) String() string {
	vals := make([]string, len(p.Keys))
	for i, k := range p.Keys {
		vals[i] = fmt.Sprint(k.Value)
	}
	return fmt.Sprintf("BatchKeys(%s)", strings.Join(vals, ", "))
}

func (p IndexFiltered) String() string { return fmt.Sprintf("IndexFiltered(%s)", p.Filter) }

func (Scan) String() string { return "Scan" }

// Plan is the immutable result of planning a statement: the chosen access
// path plus the conditions left for client-side evaluation.
type Plan struct {
	Namespace string
	Set       string
	Access    AccessPlan
	Residual  []*Condition
}

// String implements fmt.Stringer
func (p *Plan) String() string {
	if len(p.Residual) == 0 {
		return p.Access.String()
	}
	parts := make([]string, len(p.Residual))
	for i, r := range p.Residual {
		parts[i] = r.String()
	}
	return fmt.Sprintf("%s + residual %s", p.Access, strings.Join(parts, " AND "))
}

// residual returns the residual conditions as a single tree, or nil.
func (p *Plan) residual() *Condition {
	switch len(p.Residual) {
	case 0:
		return nil
	case 1:
		return p.Residual[0]
	default:
		return And(p.Residual...)
	}
}

// Planner selects an access path for conditions on a single set.
type Planner struct {
	Namespace string
	Set       string

	// Indexes reports which bins carry a secondary index. Nil means every
	// bin is considered indexed.
	Indexes store.IndexChecker
}

// Plan builds the access plan for a predicate tree.
//
// Top-level conjuncts are scanned in arrival order. A primary key equality
// yields PointKey and a primary key IN yields BatchKeys; building a second
// key-based variant is a planning conflict. The first pushable condition on
// an indexed bin yields IndexFiltered unless a key variant wins. Everything
// else, including primary key inequality and multi-value IN on a bin,
// becomes residual.
func (p *Planner) Plan(where *Condition) (*Plan, error) {
	if err := where.validate(); err != nil {
		return nil, err
	}

	plan := &Plan{Namespace: p.Namespace, Set: p.Set}
	var access AccessPlan
	var indexed *Condition
	var filter *store.Filter

	setKeyAccess := func(a AccessPlan, c *Condition) error {
		if access != nil {
			return planningConflict("more than one query variant constructed: %s conflicts with %s", c, access)
		}
		access = a
		return nil
	}

	for _, c := range where.conjuncts() {
		if err := checkLiterals(c); err != nil {
			return nil, err
		}

		if c.Operator == OpOr {
			residual, err := disjunction(c)
			if err != nil {
				return nil, err
			}
			plan.Residual = append(plan.Residual, residual)
			continue
		}

		if isPrimaryKey(c.Column) {
			switch c.Operator {
			case OpEQ:
				key, err := p.key(c.Values[0])
				if err != nil {
					return nil, err
				}
				if err := setKeyAccess(PointKey{Key: key}, c); err != nil {
					return nil, err
				}
			case OpIn:
				keys := make([]store.Key, 0, len(c.Values))
				for _, v := range c.Values {
					key, err := p.key(v)
					if err != nil {
						return nil, err
					}
					keys = append(keys, key)
				}
				if err := setKeyAccess(BatchKeys{Keys: keys}, c); err != nil {
					return nil, err
				}
			default:
				// the store cannot filter on key inequality or ranges
				plan.Residual = append(plan.Residual, c)
			}
			continue
		}

		if c.Operator == OpIn && len(c.Values) > 1 {
			plan.Residual = append(plan.Residual, expandIn(c))
			continue
		}

		if indexed == nil && p.indexed(c.Column) {
			if f := pushableFilter(Normalize(c)); f != nil {
				indexed, filter = c, f
				if approximate(c) {
					// the pushed range only brackets a non-integral bound
					plan.Residual = append(plan.Residual, c)
				}
				continue
			}
		}
		plan.Residual = append(plan.Residual, c)
	}

	switch {
	case access != nil:
		if indexed != nil && !approximate(indexed) {
			plan.Residual = append([]*Condition{indexed}, plan.Residual...)
		}
		plan.Access = access
	case filter != nil:
		plan.Access = IndexFiltered{Filter: filter}
	default:
		plan.Access = Scan{}
	}
	return plan, nil
}

func (p *Planner) indexed(bin string) bool {
	if p.Indexes == nil {
		return true
	}
	return p.Indexes.Indexed(p.Namespace, p.Set, bin)
}

func (p *Planner) key(v interface{}) (store.Key, error) {
	if i, ok := integralFloat(v); ok {
		v = i
	}
	key, err := store.NewKey(p.Namespace, p.Set, v)
	if err != nil {
		return store.Key{}, newError(KindUnsupportedLiteralType, "key by %T is not supported", v)
	}
	return key, nil
}

func isPrimaryKey(column string) bool {
	return strings.EqualFold(column, PrimaryKey)
}

// checkLiterals rejects operands that are neither numbers, strings nor byte
// sequences.
func checkLiterals(c *Condition) error {
	for _, o := range c.Operands {
		if err := checkLiterals(o); err != nil {
			return err
		}
	}
	for _, v := range c.Values {
		switch v.(type) {
		case string, []byte, float32, float64:
			continue
		}
		if isInteger(v) {
			continue
		}
		return newError(KindUnsupportedLiteralType, "filter by %T is not supported", v)
	}
	return nil
}

// disjunction accepts an OR tree whose leaves all reference one column and
// returns it unchanged as a residual condition.
func disjunction(c *Condition) (*Condition, error) {
	cols := c.columns()
	if len(cols) > 1 {
		return nil, planningConflict("disjunction spans incompatible columns: %s", strings.Join(cols, ", "))
	}
	return c, nil
}

// expandIn rewrites `column IN (a, b, ...)` into `column = a OR column = b ...`.
func expandIn(c *Condition) *Condition {
	operands := make([]*Condition, len(c.Values))
	for i, v := range c.Values {
		operands[i] = Eq(c.Column, v).Of(c.Table)
	}
	return Or(operands...)
}

// Normalize rewrites ordering comparisons into BETWEEN with sentinel bounds:
//
//	GT v -> BETWEEN v+1, MAX
//	GE v -> BETWEEN v, MAX
//	LT v -> BETWEEN MIN, v-1
//	LE v -> BETWEEN MIN, v
//
// Non-integral bounds are rounded outward, so the range holds every value
// the comparison accepts; the planner keeps such comparisons as residuals.
// Other conditions, bounds that do not fit an int64 and conditions on
// non-numeric operands are returned unchanged.
func Normalize(c *Condition) *Condition {
	if c == nil || len(c.Values) == 0 {
		return c
	}
	f, ok := toFloat64(c.Values[0])
	if !ok {
		return c
	}
	i, exact := toInt64(c.Values[0])

	var lo, hi int64
	switch c.Operator {
	case OpGT, OpGE:
		switch {
		case exact && c.Operator == OpGT:
			if i == math.MaxInt64 {
				return c
			}
			lo = i + 1
		case exact:
			lo = i
		default:
			if lo, ok = lowerBound(f); !ok {
				return c
			}
		}
		hi = math.MaxInt64
	case OpLT, OpLE:
		lo = math.MinInt64
		switch {
		case exact && c.Operator == OpLT:
			if i == math.MinInt64 {
				return c
			}
			hi = i - 1
		case exact:
			hi = i
		default:
			if hi, ok = upperBound(f); !ok {
				return c
			}
		}
	default:
		return c
	}
	return &Condition{Operator: OpBetween, Table: c.Table, Column: c.Column, Values: []interface{}{lo, hi}}
}

// approximate reports whether the filter pushed for c may accept more
// records than c itself, which is the case for non-integral numeric bounds.
func approximate(c *Condition) bool {
	for _, v := range c.Values {
		if _, ok := v.(string); ok {
			continue
		}
		if !isInteger(v) {
			return true
		}
	}
	return false
}

// lowerBound rounds a lower bound down onto the int64 range. It fails when
// the bound lies above every int64.
func lowerBound(f float64) (int64, bool) {
	switch {
	case math.IsNaN(f) || f >= maxInt64Float:
		return 0, false
	case f < minInt64Float:
		return math.MinInt64, true
	}
	return int64(math.Floor(f)), true
}

// upperBound rounds an upper bound up onto the int64 range. It fails when
// the bound lies below every int64.
func upperBound(f float64) (int64, bool) {
	switch {
	case math.IsNaN(f) || f < minInt64Float:
		return 0, false
	case f >= maxInt64Float:
		return math.MaxInt64, true
	}
	return int64(math.Ceil(f)), true
}

// pushableFilter builds the store filter for a normalized condition, or nil
// when the store cannot evaluate it exactly.
func pushableFilter(c *Condition) *store.Filter {
	switch c.Operator {
	case OpEQ, OpIn:
		if len(c.Values) != 1 {
			return nil
		}
		switch v := c.Values[0].(type) {
		case string:
			f, _ := store.EqualFilter(c.Column, v)
			return f
		}
		if i, ok := toInt64(c.Values[0]); ok {
			f, _ := store.EqualFilter(c.Column, i)
			return f
		}
	case OpBetween:
		loF, ok1 := toFloat64(c.Values[0])
		hiF, ok2 := toFloat64(c.Values[1])
		if !ok1 || !ok2 {
			return nil
		}
		lo, exact := toInt64(c.Values[0])
		if !exact {
			if lo, exact = lowerBound(loF); !exact {
				return nil
			}
		}
		hi, exact := toInt64(c.Values[1])
		if !exact {
			if hi, exact = upperBound(hiF); !exact {
				return nil
			}
		}
		return store.RangeFilter(c.Column, lo, hi)
	}
	return nil
}
