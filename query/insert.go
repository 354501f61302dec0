package query

import (
	"context"
	"strings"

	"github.com/vegasq/kvsql/store"
)

// Insert writes the rows of an INSERT and returns how many were written.
//
// The column list must name the primary key. Unless SkipDuplicates is set,
// the keys are checked with one batch lookup first and the insert fails
// with a duplicate key error before anything is written. Null values are
// not stored.
func (e *Engine) Insert(ctx context.Context, ins *Insert) (int, error) {
	if ins.Table == "" {
		return 0, invalidStatement("insert without a table")
	}
	namespace := e.namespace(ins.Namespace)

	pk := -1
	for i, name := range ins.Columns {
		if strings.EqualFold(name, PrimaryKey) {
			pk = i
			break
		}
	}
	if pk < 0 {
		return 0, newError(KindMissingRequiredColumn, "%s is not specified", PrimaryKey)
	}

	keys := make([]store.Key, len(ins.Rows))
	seen := make(map[string]bool, len(ins.Rows))
	for i, row := range ins.Rows {
		if len(row) != len(ins.Columns) {
			return 0, invalidStatement("row #%d has %d values, expected %d", i+1, len(row), len(ins.Columns))
		}
		v := row[pk]
		if i, ok := integralFloat(v); ok {
			v = i
		}
		key, err := store.NewKey(namespace, ins.Table, v)
		if err != nil {
			return 0, newError(KindUnsupportedLiteralType, "key by %T is not supported", row[pk])
		}
		if !ins.SkipDuplicates && seen[key.Digest()] {
			return 0, newError(KindDuplicateKey, "duplicate key %v", key.Value)
		}
		seen[key.Digest()] = true
		keys[i] = key
	}

	if !ins.SkipDuplicates && len(keys) > 0 {
		existing, err := e.client.BatchGet(ctx, keys, nil)
		if err != nil {
			return 0, storeError("check keys of "+ins.Table, err)
		}
		for i, rec := range existing {
			if rec != nil {
				return 0, newError(KindDuplicateKey, "duplicate key %v", keys[i].Value)
			}
		}
	}

	written := 0
	for i, row := range ins.Rows {
		bins := make(map[string]interface{}, len(row)-1)
		for j, name := range ins.Columns {
			if j == pk || row[j] == nil {
				continue
			}
			bins[name] = normalizeValue(row[j])
		}
		if err := e.client.Put(ctx, keys[i], bins); err != nil {
			return written, storeError("put "+keys[i].String(), err)
		}
		written++
	}

	e.logger.Debug("inserted records",
		"namespace", namespace,
		"table", ins.Table,
		"count", written)
	return written, nil
}
