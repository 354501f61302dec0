package query

import (
	"context"

	"github.com/vegasq/kvsql/store"
)

// updateBatchSize caps the keys read back in one BatchGet.
const updateBatchSize = 256

// Update rewrites the records matched by an UPDATE and returns how many
// were written.
//
// Records are matched the way a SELECT matches them: Where goes through the
// planner, so a key or index condition avoids a scan, and Filter is applied
// per row. All matches are collected before the first write. Each record is
// then read whole, its assigned bins replaced, and stored with Put.
func (e *Engine) Update(ctx context.Context, upd *Update) (int, error) {
	if err := upd.validate(); err != nil {
		return 0, err
	}
	namespace := e.namespace(upd.Namespace)

	known := make([]string, len(upd.Set))
	for i, a := range upd.Set {
		known[i] = a.Column
	}
	evaluator := NewEvaluator()
	exprs := make([]*Expression, len(upd.Set))
	for i, a := range upd.Set {
		if a.Expression == "" {
			continue
		}
		x, err := evaluator.Compile(a.Expression, known...)
		if err != nil {
			return 0, err
		}
		exprs[i] = x
	}

	keys, err := e.matchingKeys(ctx, upd, namespace)
	if err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(keys); start += updateBatchSize {
		end := start + updateBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		records, err := e.client.BatchGet(ctx, keys[start:end], nil)
		if err != nil {
			return written, storeError("read "+upd.Table, err)
		}
		for _, rec := range records {
			// deleted since it matched
			if rec == nil {
				continue
			}
			bins, err := assign(upd.Set, exprs, rec)
			if err != nil {
				return written, err
			}
			if err := e.client.Put(ctx, rec.Key, bins); err != nil {
				return written, storeError("put "+rec.Key.String(), err)
			}
			written++
		}
	}

	e.logger.Debug("updated records",
		"namespace", namespace,
		"table", upd.Table,
		"count", written)
	return written, nil
}

// matchingKeys runs the WHERE part of an update as a key-only SELECT.
func (e *Engine) matchingKeys(ctx context.Context, upd *Update, namespace string) ([]store.Key, error) {
	cursor, err := e.Compile(ctx, &Statement{
		Namespace: upd.Namespace,
		Table:     upd.Table,
		Columns:   []*Column{NewColumn(PrimaryKey)},
		Where:     upd.Where,
		Filter:    upd.Filter,
		Limit:     upd.Limit,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close() }()

	var keys []store.Key
	for {
		ok, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return keys, nil
		}
		v, err := cursor.Value(0)
		if err != nil {
			return nil, err
		}
		key, err := store.NewKey(namespace, upd.Table, v)
		if err != nil {
			return nil, newError(KindUnsupportedLiteralType, "key by %T is not supported", v)
		}
		keys = append(keys, key)
	}
}

// assign merges the assignments into a copy of the record's bins.
// Expressions see the record as it was before the update.
func assign(set []Assignment, exprs []*Expression, rec *store.Record) (map[string]interface{}, error) {
	row := make(map[string]interface{}, len(rec.Bins)+1)
	bins := make(map[string]interface{}, len(rec.Bins)+len(set))
	for name, v := range rec.Bins {
		row[name] = v
		bins[name] = v
	}
	row[PrimaryKey] = rec.Key.Value

	for i, a := range set {
		v := a.Value
		if exprs[i] != nil {
			out, err := exprs[i].EvalMap(row)
			if err != nil {
				return nil, err
			}
			v = out
		}
		if v == nil {
			delete(bins, a.Column)
			continue
		}
		bins[a.Column] = normalizeValue(v)
	}
	return bins, nil
}
