package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/vegasq/kvsql/store"
)

// maxFiles caps how many files a glob pattern may load.
const maxFiles = 1000

// FileColumn is the bin that records the source file of multi-file loads.
const FileColumn = "_file"

// Reader streams parquet rows as bin maps.
//
// It keeps both the OS file handle and the parquet file handle so Close can
// release them.
type Reader struct {
	file   *os.File
	pqFile *parquet.File
}

// NewReader opens a parquet file.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pqFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	return &Reader{file: file, pqFile: pqFile}, nil
}

// Each calls fn for every row, with values converted to the store's value
// domain. Iteration stops at the first error returned by fn.
func (r *Reader) Each(fn func(row map[string]interface{}) error) error {
	rows := parquet.NewReader(r.pqFile)
	defer func() { _ = rows.Close() }()

	for {
		row := make(map[string]interface{})
		if err := rows.Read(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read row: %w", err)
		}
		for k, v := range row {
			row[k] = binValue(v)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// NumRows returns the row count recorded in the file metadata.
func (r *Reader) NumRows() int64 {
	return r.pqFile.NumRows()
}

// Schema returns the parquet file schema.
func (r *Reader) Schema() *parquet.Schema {
	return r.pqFile.Schema()
}

// Close releases the file handle. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// LoadOptions tells Load where rows go.
type LoadOptions struct {
	Namespace string
	Set       string

	// PrimaryKey names the column holding the record key. When empty, rows
	// are keyed by their 1-based position across all loaded files.
	PrimaryKey string
}

// Load writes every row of the parquet files matching pattern into a set
// and returns the number of records written.
//
// The pattern may be a plain path or a glob. Rows loaded through a glob
// carry their source path in the _file bin. The key column is removed from
// the bins.
func Load(ctx context.Context, client store.Client, pattern string, opts LoadOptions) (int, error) {
	files, err := expand(pattern)
	if err != nil {
		return 0, err
	}
	tagFiles := isGlob(pattern)

	written := 0
	for _, path := range files {
		r, err := NewReader(path)
		if err != nil {
			return written, fmt.Errorf("failed to read %s: %w", path, err)
		}

		loadErr := r.Each(func(row map[string]interface{}) error {
			key, err := recordKey(opts, row, written+1)
			if err != nil {
				return err
			}
			if tagFiles {
				row[FileColumn] = path
			}
			if err := client.Put(ctx, key, row); err != nil {
				return fmt.Errorf("failed to put %s: %w", key, err)
			}
			written++
			return nil
		})
		closeErr := r.Close()

		if loadErr != nil {
			return written, fmt.Errorf("failed to load rows from %s: %w", path, loadErr)
		}
		if closeErr != nil {
			return written, fmt.Errorf("failed to close %s: %w", path, closeErr)
		}
	}
	return written, nil
}

func recordKey(opts LoadOptions, row map[string]interface{}, position int) (store.Key, error) {
	if opts.PrimaryKey == "" {
		return store.NewKey(opts.Namespace, opts.Set, int64(position))
	}
	v, ok := row[opts.PrimaryKey]
	if !ok || v == nil {
		return store.Key{}, fmt.Errorf("row %d has no value for key column %q", position, opts.PrimaryKey)
	}
	delete(row, opts.PrimaryKey)
	key, err := store.NewKey(opts.Namespace, opts.Set, v)
	if err != nil {
		return store.Key{}, fmt.Errorf("key column %q: %w", opts.PrimaryKey, err)
	}
	return key, nil
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[]{}")
}

// expand resolves a path or glob pattern to the files to read.
func expand(pattern string) ([]string, error) {
	if !isGlob(pattern) {
		return []string{pattern}, nil
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files match pattern: %s", pattern)
	}
	if len(matches) > maxFiles {
		return nil, fmt.Errorf("glob pattern matched too many files (%d), maximum is %d", len(matches), maxFiles)
	}
	return matches, nil
}

// binValue maps a decoded parquet value onto the store's value domain:
// integers become int64, float32 becomes float64, and nested groups and
// lists are converted recursively.
func binValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = binValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = binValue(e)
		}
		return out
	default:
		return fmt.Sprint(val)
	}
}
