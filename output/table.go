package output

import (
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/vegasq/kvsql/query"
)

// TableFormatter outputs rows as an aligned text table. Rows are buffered
// until the cursor is drained, since column widths depend on every value.
type TableFormatter struct {
	writer io.Writer
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

// SetOutput sets the output writer
func (t *TableFormatter) SetOutput(w io.Writer) {
	t.writer = w
}

// Format renders the header and all rows as one table.
func (t *TableFormatter) Format(cursor query.Cursor) error {
	table := tablewriter.NewWriter(t.writer)
	table.SetAutoFormatHeaders(false)

	header := func(columns []*query.Column) error {
		table.SetHeader(names(columns))
		return nil
	}
	err := each(cursor, header, func(row query.Row) error {
		record := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				record[i] = "NULL"
				continue
			}
			record[i] = formatValue(v)
		}
		table.Append(record)
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}
