package reader

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// SchemaInfo describes one leaf column of a parquet file and the bin type
// it becomes once loaded.
type SchemaInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	PhysicalType string `json:"physical_type"`
	LogicalType  string `json:"logical_type"`
	BinType      string `json:"bin_type"`
	Required     bool   `json:"required"`
	Optional     bool   `json:"optional"`
	Repeated     bool   `json:"repeated"`
}

// ExtractSchemaInfo lists the leaf columns of a parquet file. Nested
// fields use dot notation (e.g. "address.street").
func ExtractSchemaInfo(path string) ([]SchemaInfo, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer func() { _ = r.Close() }()

	var infos []SchemaInfo
	for _, field := range r.Schema().Fields() {
		infos = append(infos, fieldInfo(field, "", false)...)
	}
	return infos, nil
}

// fieldInfo flattens a field, propagating the repeated flag of parents.
func fieldInfo(field parquet.Field, prefix string, parentRepeated bool) []SchemaInfo {
	name := field.Name()
	if prefix != "" {
		name = prefix + "." + name
	}
	repeated := parentRepeated || field.Repeated()

	if children := field.Fields(); len(children) > 0 {
		var infos []SchemaInfo
		for _, child := range children {
			infos = append(infos, fieldInfo(child, name, repeated)...)
		}
		return infos
	}

	info := SchemaInfo{
		Name:         name,
		Type:         friendlyType(field),
		PhysicalType: physicalType(field),
		LogicalType:  logicalType(field),
		Required:     field.Required(),
		Optional:     field.Optional(),
		Repeated:     repeated,
	}
	info.BinType = binType(info)
	return []SchemaInfo{info}
}

func physicalType(field parquet.Field) string {
	if field.Type() == nil {
		return "GROUP"
	}
	switch field.Type().Kind() {
	case parquet.Boolean:
		return "BOOLEAN"
	case parquet.Int32:
		return "INT32"
	case parquet.Int64:
		return "INT64"
	case parquet.Int96:
		return "INT96"
	case parquet.Float:
		return "FLOAT"
	case parquet.Double:
		return "DOUBLE"
	case parquet.ByteArray:
		return "BYTE_ARRAY"
	case parquet.FixedLenByteArray:
		return "FIXED_LEN_BYTE_ARRAY"
	default:
		return "UNKNOWN"
	}
}

func logicalType(field parquet.Field) string {
	if field.Type() == nil || field.Type().LogicalType() == nil {
		return ""
	}
	return field.Type().LogicalType().String()
}

// friendlyType prefers the logical type and falls back to the physical one.
func friendlyType(field parquet.Field) string {
	if field.Type() == nil {
		return "GROUP"
	}
	switch logical := logicalType(field); logical {
	case "STRING", "UTF8":
		return "STRING"
	case "ENUM", "UUID", "DATE", "TIME", "TIMESTAMP", "DECIMAL", "JSON", "BSON":
		return logical
	}
	switch field.Type().Kind() {
	case parquet.Float:
		return "FLOAT32"
	case parquet.Double:
		return "FLOAT64"
	default:
		return physicalType(field)
	}
}

// binType names the value type a column has in the store after Load.
func binType(info SchemaInfo) string {
	if info.Repeated {
		return "LIST"
	}
	switch info.Type {
	case "BOOLEAN":
		return "BOOLEAN"
	case "INT32", "INT64", "DATE", "TIME", "TIMESTAMP":
		return "LONG"
	case "FLOAT32", "FLOAT64":
		return "DOUBLE"
	case "STRING", "ENUM", "JSON":
		return "STRING"
	default:
		return "BYTES"
	}
}
