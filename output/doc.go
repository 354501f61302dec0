// Package output writes query results in various formats.
//
// Every formatter drains a query.Cursor, so rows stream straight from the
// cursor chain; only the table formatter buffers, because it needs every
// value to size its columns.
//
// # Supported Formats
//
//   - JSON Lines: one JSON object per row (github.com/goccy/go-json)
//   - CSV: header row plus one record per row, in column order
//   - Table: aligned text table (github.com/olekukonko/tablewriter)
//
// # Basic Usage
//
//	formatter, err := output.New("csv", os.Stdout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := formatter.Format(cursor); err != nil {
//	    log.Fatal(err)
//	}
//
// # Type Handling
//
//   - Strings, numbers and booleans are written directly
//   - JSON keeps lists and nested maps; CSV and table write them as JSON text
//   - CSV strings that start with a formula character are quoted
//   - Null is an empty field in CSV and NULL in tables
package output
