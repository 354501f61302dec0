package reader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type userRow struct {
	ID     int64   `parquet:"id"`
	Name   string  `parquet:"name"`
	Age    int32   `parquet:"age"`
	Score  float64 `parquet:"score"`
	Active bool    `parquet:"active"`
}

// writeParquet writes rows into dir/name and returns the path.
func writeParquet[T any](t *testing.T, dir, name string, rows []T) string {
	t.Helper()
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	writer := parquet.NewGenericWriter[T](f)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("failed to write test data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close file: %v", err)
	}
	return path
}

func sampleUsers() []userRow {
	return []userRow{
		{ID: 1, Name: "alice", Age: 30, Score: 95.5, Active: true},
		{ID: 2, Name: "bob", Age: 25, Score: 82.3, Active: false},
		{ID: 3, Name: "charlie", Age: 35, Score: 88.7, Active: true},
	}
}
