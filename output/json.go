package output

import (
	"io"

	"github.com/goccy/go-json"

	"github.com/vegasq/kvsql/query"
)

// JSONFormatter outputs rows as JSON Lines format
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a new JSON Lines formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

// SetOutput sets the output writer
func (j *JSONFormatter) SetOutput(w io.Writer) {
	j.writer = w
}

// Format writes one JSON object per row, keyed by output column name.
func (j *JSONFormatter) Format(cursor query.Cursor) error {
	encoder := json.NewEncoder(j.writer)
	var columns []*query.Column
	header := func(cols []*query.Column) error {
		columns = cols
		return nil
	}
	return each(cursor, header, func(row query.Row) error {
		obj := make(map[string]interface{}, len(columns))
		for i, c := range columns {
			obj[c.OutputName()] = row[i]
		}
		return encoder.Encode(obj)
	})
}
