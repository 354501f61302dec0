package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/vegasq/kvsql/query"
)

// Formatter writes the rows of a cursor in a specific format.
type Formatter interface {
	// Format drains the cursor, writes its rows and closes it.
	Format(cursor query.Cursor) error

	// SetOutput changes the output writer
	SetOutput(w io.Writer)
}

// New returns the formatter for a format name: json (alias jsonl), csv or
// table.
func New(format string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json", "jsonl":
		return NewJSONFormatter(w), nil
	case "csv":
		return NewCSVFormatter(w), nil
	case "table":
		return NewTableFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// names returns the output names of columns.
func names(columns []*query.Column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.OutputName()
	}
	return out
}

// each resolves the columns of a cursor, hands them to header, streams the
// rows to fn and closes the cursor.
func each(cursor query.Cursor, header func(columns []*query.Column) error, fn func(row query.Row) error) error {
	defer func() { _ = cursor.Close() }()

	columns, err := cursor.Metadata()
	if err != nil {
		return fmt.Errorf("failed to resolve columns: %w", err)
	}
	if err := header(columns); err != nil {
		return err
	}
	for {
		ok, err := cursor.Next()
		if err != nil {
			return fmt.Errorf("failed to read row: %w", err)
		}
		if !ok {
			return nil
		}
		row := make(query.Row, len(columns))
		for i := range columns {
			if row[i], err = cursor.Value(i); err != nil {
				return fmt.Errorf("failed to read column %s: %w", columns[i].OutputName(), err)
			}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}
