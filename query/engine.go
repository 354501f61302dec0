package query

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/vegasq/kvsql/store"
)

// DefaultPageSize caps the lossy sort buffer of statements without a limit.
const DefaultPageSize = 10000

// Options configures an Engine.
type Options struct {
	// Namespace is used by statements that do not name one.
	Namespace string

	// SampleSize is the number of records sampled for type discovery and
	// SELECT * expansion.
	SampleSize int

	// LossyOrder enables the evict-before-admit sort buffer.
	LossyOrder bool

	// PageSize caps the lossy sort buffer when a statement has no limit.
	PageSize int

	Logger *slog.Logger
}

// Engine compiles statements into cursor chains over a store client.
//
// An Engine is safe for concurrent use as long as its client is; every
// compiled cursor chain belongs to a single caller.
type Engine struct {
	client  store.Client
	options Options
	logger  *slog.Logger
}

// NewEngine creates an engine on top of client.
func NewEngine(client store.Client, options Options) *Engine {
	if options.SampleSize <= 0 {
		options.SampleSize = DefaultSampleSize
	}
	if options.PageSize <= 0 {
		options.PageSize = DefaultPageSize
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, options: options, logger: logger}
}

func (e *Engine) indexes() store.IndexChecker {
	if checker, ok := e.client.(store.IndexChecker); ok {
		return checker
	}
	return nil
}

func (e *Engine) namespace(ns string) string {
	if ns != "" {
		return ns
	}
	return e.options.Namespace
}

// compilation carries the per-statement state of Compile.
type compilation struct {
	ctx       context.Context
	id        string
	stmt      *Statement
	namespace string
	columns   []*Column
	evaluator *Evaluator
	known     []string
}

// Compile plans a statement and returns its cursor chain. Index and scan
// fetches start on the first call to Next; key lookups run immediately.
func (e *Engine) Compile(ctx context.Context, stmt *Statement) (Cursor, error) {
	if err := stmt.validate(); err != nil {
		return nil, err
	}

	c := &compilation{
		ctx:       ctx,
		id:        uuid.NewString(),
		stmt:      stmt,
		namespace: e.namespace(stmt.Namespace),
		evaluator: NewEvaluator(),
	}

	columns := append([]*Column(nil), stmt.Columns...)
	if len(columns) == 0 {
		expanded, err := e.expandAll(ctx, c.namespace, stmt.Table)
		if err != nil {
			return nil, err
		}
		columns = expanded
	}
	for _, col := range columns {
		col.Catalog = c.namespace
		col.Table = stmt.name()
	}
	c.columns = columns
	c.known = knownNames(columns, stmt.Joins)

	return e.compile(c)
}

func (e *Engine) compile(c *compilation) (Cursor, error) {
	stmt := c.stmt

	// split WHERE into the part planned on the main table and the part
	// that needs joined rows
	var local, joined []*Condition
	for _, cond := range stmt.Where.conjuncts() {
		if c.ownedByJoin(cond) {
			joined = append(joined, cond)
		} else {
			local = append(local, cond)
		}
	}

	// columns the chain needs but the caller did not project
	for _, cond := range local {
		c.require(cond.columns()...)
	}
	for _, col := range c.columns {
		switch col.Role {
		case RoleAggregated:
			if _, arg, err := parseAggregate(col.Name); err == nil && arg != "*" {
				c.require(arg)
			}
		case RoleExpression:
			x, err := c.evaluator.Compile(col.Expression, c.known...)
			if err != nil {
				return nil, err
			}
			c.require(x.Variables()...)
		}
	}
	for _, j := range stmt.Joins {
		c.require(refs(j.On)...)
	}
	for _, cond := range joined {
		c.require(cond.columns()...)
	}
	var filter *Expression
	if stmt.Filter != "" {
		x, err := c.evaluator.Compile(stmt.Filter, c.known...)
		if err != nil {
			return nil, err
		}
		filter = x
		c.require(x.Variables()...)
	}
	if !stmt.aggregated() {
		for _, o := range stmt.OrderBy {
			c.require(o.Column)
		}
	}

	planner := &Planner{Namespace: c.namespace, Set: stmt.Table, Indexes: e.indexes()}
	plan, err := planner.Plan(conjunction(local))
	if err != nil {
		return nil, err
	}
	e.logger.Debug("planned statement",
		"statement_id", c.id,
		"statement", stmt.String(),
		"plan", plan.String())

	src := &source{
		ctx:        c.ctx,
		client:     e.client,
		namespace:  c.namespace,
		set:        stmt.Table,
		alias:      stmt.name(),
		columns:    c.columns,
		sampleSize: e.options.SampleSize,
	}
	cursor, err := openPlan(src, plan)
	if err != nil {
		return nil, err
	}

	if hasExpressions(c.columns) {
		if cursor, err = newExpressionCursor(cursor, c.evaluator, c.columns, c.known); err != nil {
			return nil, err
		}
	}
	if residual := plan.residual(); residual != nil {
		cursor = NewFilter(cursor, ConditionPredicate(residual))
	}

	output := visibleColumns(c.columns)
	if len(stmt.Joins) > 0 {
		sources := make([]JoinSource, len(stmt.Joins))
		for i := range stmt.Joins {
			j := &stmt.Joins[i]
			sources[i] = e.joinSource(c, j)
			output = append(output, visibleColumns(j.Columns)...)
		}
		cursor = NewJoinCursor(cursor, sources...)
	}
	if residual := conjunction(joined); residual != nil {
		cursor = NewFilter(cursor, ConditionPredicate(residual))
	}
	if filter != nil {
		cursor = NewFilter(cursor, ExpressionPredicate(filter))
	}

	if stmt.aggregated() {
		agg, err := NewAggregatingCursor(cursor, visibleColumns(c.columns))
		if err != nil {
			return nil, err
		}
		if stmt.Having != "" {
			having, err := c.evaluator.Compile(stmt.Having, knownNames(visibleColumns(c.columns), nil)...)
			if err != nil {
				return nil, err
			}
			agg.Having(having)
		}
		cursor = agg
	}

	if stmt.Distinct {
		cursor = NewFilter(cursor, Distinct())
	}
	if len(stmt.OrderBy) > 0 {
		cursor = NewSortedCursor(cursor, stmt.OrderBy, e.orderOptions(stmt))
	}
	if stmt.Offset > 0 || stmt.Limit > 0 {
		limit := stmt.Limit
		if limit <= 0 {
			limit = -1
		}
		cursor = NewFilter(cursor, OffsetLimit(stmt.Offset, limit))
	}
	return newProjectionCursor(cursor, output), nil
}

// Explain plans the main table of a statement without touching the store.
// Conditions owned by joined tables are left out of the plan.
func (e *Engine) Explain(stmt *Statement) (*Plan, error) {
	if err := stmt.validate(); err != nil {
		return nil, err
	}
	c := &compilation{stmt: stmt, namespace: e.namespace(stmt.Namespace)}
	var local []*Condition
	for _, cond := range stmt.Where.conjuncts() {
		if !c.ownedByJoin(cond) {
			local = append(local, cond)
		}
	}
	planner := &Planner{Namespace: c.namespace, Set: stmt.Table, Indexes: e.indexes()}
	return planner.Plan(conjunction(local))
}

// orderOptions sizes the sort buffer: offset+limit rows when a limit is set,
// the page size in lossy mode, everything otherwise.
func (e *Engine) orderOptions(stmt *Statement) OrderOptions {
	options := OrderOptions{Lossy: e.options.LossyOrder}
	switch {
	case stmt.Limit > 0:
		options.Capacity = int(stmt.Offset + stmt.Limit)
	case options.Lossy:
		options.Capacity = e.options.PageSize
	}
	return options
}

// joinSource builds the inner cursor factory of a join. The ON condition is
// resolved against each outer row and planned like a WHERE clause, so a
// key equality becomes a point lookup.
func (e *Engine) joinSource(c *compilation, j *Join) JoinSource {
	alias := j.name()
	columns := j.Columns
	for _, col := range columns {
		col.Catalog = c.namespace
		col.Table = alias
	}
	for _, name := range j.On.columns() {
		table, column := splitQualified(name)
		if table != "" && table != alias {
			continue
		}
		if !isPrimaryKey(column) && findColumn(columns, column) == nil {
			columns = append(columns, &Column{Catalog: c.namespace, Table: alias, Name: column, Role: RoleHidden})
		}
	}
	j.Columns = columns

	newSource := func() *source {
		return &source{
			ctx:        c.ctx,
			client:     e.client,
			namespace:  c.namespace,
			set:        j.Table,
			alias:      alias,
			columns:    columns,
			sampleSize: e.options.SampleSize,
		}
	}
	planner := &Planner{Namespace: c.namespace, Set: j.Table, Indexes: e.indexes()}

	return JoinSource{
		SkipIfMissing: j.SkipIfMissing,
		Open: func(outer Cursor) (Cursor, error) {
			on, err := j.On.resolve(outer.ValueByName)
			if err != nil {
				return nil, err
			}
			src := newSource()
			if hasNull(on) {
				return newKeyCursor(src, nil), nil
			}
			plan, err := planner.Plan(on)
			if err != nil {
				return nil, err
			}
			inner, err := openPlan(src, plan)
			if err != nil {
				return nil, err
			}
			if residual := plan.residual(); residual != nil {
				inner = NewFilter(inner, ConditionPredicate(residual))
			}
			return inner, nil
		},
		Metadata: func() ([]*Column, error) {
			rc := newRecordCursor(newSource())
			return rc.Metadata()
		},
	}
}

// Metadata returns the resolved output columns of a statement. Plain
// statements only sample the store; aggregating statements have to fold
// their input to know the result types.
func (e *Engine) Metadata(ctx context.Context, stmt *Statement) ([]*Column, error) {
	cursor, err := e.Compile(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close() }()
	return cursor.Metadata()
}

// expandAll builds the column list of SELECT * from sampled records: PK
// first, then every bin seen, sorted by name.
func (e *Engine) expandAll(ctx context.Context, namespace, table string) ([]*Column, error) {
	stream, err := e.client.Scan(ctx, namespace, table, nil)
	if err != nil {
		return nil, storeError("scan "+table, err)
	}
	defer func() { _ = stream.Close() }()

	seen := make(map[string]bool)
	var bins []string
	for n := 0; n < e.options.SampleSize && stream.Next(); n++ {
		for bin := range stream.Record().Bins {
			if !seen[bin] {
				seen[bin] = true
				bins = append(bins, bin)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, storeError("scan "+table, err)
	}
	sort.Strings(bins)

	columns := []*Column{NewColumn(PrimaryKey)}
	for _, bin := range bins {
		columns = append(columns, NewColumn(bin))
	}
	return columns, nil
}

// ownedByJoin reports whether a condition reads a joined table's column.
func (c *compilation) ownedByJoin(cond *Condition) bool {
	for _, name := range cond.columns() {
		table, _ := splitQualified(name)
		if table == "" || table == c.stmt.name() || table == c.stmt.Table {
			continue
		}
		return true
	}
	return false
}

// require adds hidden columns for names the chain reads from the main
// table but the caller did not project.
func (c *compilation) require(names ...string) {
	for _, name := range names {
		table, column := splitQualified(name)
		if table != "" && table != c.stmt.name() && table != c.stmt.Table {
			continue
		}
		if column == "" || isPrimaryKey(column) || findColumn(c.columns, column) != nil {
			continue
		}
		c.columns = append(c.columns, &Column{
			Catalog: c.namespace,
			Table:   c.stmt.name(),
			Name:    column,
			Role:    RoleHidden,
		})
	}
}

func knownNames(columns []*Column, joins []Join) []string {
	var names []string
	add := func(cols []*Column) {
		for _, col := range cols {
			names = append(names, col.Name)
			if col.Label != "" && col.Label != col.Name {
				names = append(names, col.Label)
			}
		}
	}
	add(columns)
	for _, j := range joins {
		add(j.Columns)
	}
	return names
}

func hasExpressions(columns []*Column) bool {
	for _, c := range columns {
		if c.Role == RoleExpression {
			return true
		}
	}
	return false
}

// conjunction joins conditions with AND, returning nil for none.
func conjunction(conds []*Condition) *Condition {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return And(conds...)
	}
}

// refs returns the names of the ColumnRef operands of a tree.
func refs(c *Condition) []string {
	if c == nil {
		return nil
	}
	var names []string
	for _, v := range c.Values {
		if ref, ok := v.(ColumnRef); ok {
			names = append(names, ref.Name)
		}
	}
	for _, o := range c.Operands {
		names = append(names, refs(o)...)
	}
	return names
}

// hasNull reports whether a leaf of the tree compares against null, which
// never matches.
func hasNull(c *Condition) bool {
	if c == nil {
		return false
	}
	if c.Operator == OpAnd {
		for _, o := range c.Operands {
			if hasNull(o) {
				return true
			}
		}
		return false
	}
	if c.Operator == OpOr {
		for _, o := range c.Operands {
			if !hasNull(o) {
				return false
			}
		}
		return true
	}
	if c.Operator == OpNE {
		return false
	}
	for _, v := range c.Values {
		if v == nil {
			return true
		}
	}
	return false
}
