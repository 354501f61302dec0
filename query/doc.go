// Package query translates relational statements into the primitives of a
// schemaless key-value store and executes them as chains of cursors.
//
// The store contract lives in package store: point get, batch get, a
// single-predicate secondary-index query, a full scan and put. Everything
// else is built here:
//   - an access-path planner choosing between PointKey, BatchKeys,
//     IndexFiltered and Scan, with the remaining conditions kept as a
//     residual filter
//   - row cursors over store records with lazy type discovery
//   - filter, distinct and offset/limit decorators
//   - a nested-loop join with inner (skip if missing) and left semantics
//   - grouping with count, sum, avg, min, max and sumsqs
//   - ordering with an optional lossy bounded buffer
//   - computed columns and free-form predicates evaluated with CEL
//
// # Basic Usage
//
//	engine := query.NewEngine(client, query.Options{Namespace: "test"})
//
//	cursor, err := engine.Compile(ctx, &query.Statement{
//	    Table:   "users",
//	    Columns: []*query.Column{query.NewColumn("PK"), query.NewColumn("name")},
//	    Where:   query.Gt("age", 30),
//	    OrderBy: []query.OrderItem{{Column: "name"}},
//	    Limit:   10,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rows, err := query.ReadMaps(cursor)
//
// # Planning
//
// Conditions on the reserved PK column become key lookups. Comparisons on
// indexed bins are normalized into ranges and pushed to the store; only
// the first pushable condition is pushed, the rest are evaluated on each
// row. Use Engine.Explain to see the chosen plan:
//
//	plan, _ := engine.Explain(stmt)
//	fmt.Println(plan) // IndexFiltered(age BETWEEN 31 AND MAX) + residual name = 'bob'
//
// # Expressions
//
// Expression columns and Statement.Filter accept SQL-style syntax (AND, OR,
// NOT, =, <>, LIKE, BETWEEN, IN, IS NULL) which is rewritten to CEL before
// compilation. Column names that are not valid identifiers can be quoted
// with double quotes or backticks.
//
// # Errors
//
// Engine failures are *Error values whose Kind tells planning conflicts,
// type conflicts, evaluation failures and store failures apart. They match
// the package sentinels with errors.Is:
//
//	if errors.Is(err, query.ErrPlanningConflict) { ... }
package query
