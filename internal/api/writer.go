package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"steward/internal/metadata"
	"steward/internal/store"
)

// Writer executes sanitized write payloads: the direct columns against
// the resource table, then any nested association blocks against their
// child tables.
type Writer struct {
	db       *store.Store
	registry *metadata.Registry
}

func NewWriter(db *store.Store, reg *metadata.Registry) *Writer {
	return &Writer{db: db, registry: reg}
}

// Create inserts a record and returns the stored row.
func (w *Writer) Create(ctx context.Context, res *metadata.Resource, attrs map[string]any) (map[string]any, error) {
	direct, nested := w.split(res, attrs)

	if _, ok := direct[res.PrimaryKey.Column]; !ok && res.PrimaryKey.Type == metadata.TypeUUID {
		direct[res.PrimaryKey.Column] = uuid.NewString()
	}

	pb := w.db.Dialect.NewParamBuilder()
	var cols, vals []string
	for i := range res.Columns {
		col := &res.Columns[i]
		v, ok := direct[col.Name]
		if !ok {
			continue
		}
		cols = append(cols, col.Name)
		vals = append(vals, pb.Add(w.bindValue(col, v)))
	}
	if res.HasColumn("created_at") {
		cols = append(cols, "created_at")
		vals = append(vals, w.db.Dialect.NowExpr())
	}
	if res.HasColumn("updated_at") {
		cols = append(cols, "updated_at")
		vals = append(vals, w.db.Dialect.NowExpr())
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		res.Table, strings.Join(cols, ", "), strings.Join(vals, ", "))
	row, err := store.QueryRow(ctx, w.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, w.db.Dialect.MapError(err)
	}

	if err := w.writeNested(ctx, res, row[res.PrimaryKey.Column], nested); err != nil {
		return nil, err
	}
	return row, nil
}

// Update applies the payload to an existing record and returns the
// updated row.
func (w *Writer) Update(ctx context.Context, res *metadata.Resource, id string, attrs map[string]any) (map[string]any, error) {
	direct, nested := w.split(res, attrs)
	delete(direct, res.PrimaryKey.Column)

	pb := w.db.Dialect.NewParamBuilder()
	var sets []string
	for i := range res.Columns {
		col := &res.Columns[i]
		v, ok := direct[col.Name]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", col.Name, pb.Add(w.bindValue(col, v))))
	}
	if res.HasColumn("updated_at") {
		sets = append(sets, "updated_at = "+w.db.Dialect.NowExpr())
	}

	if len(sets) > 0 {
		sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			res.Table, strings.Join(sets, ", "), res.PrimaryKey.Column, pb.Add(id))
		affected, err := store.Exec(ctx, w.db.DB, sqlStr, pb.Params()...)
		if err != nil {
			return nil, w.db.Dialect.MapError(err)
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
	}

	if err := w.writeNested(ctx, res, id, nested); err != nil {
		return nil, err
	}
	return w.Fetch(ctx, res, id)
}

// Delete removes a record by primary key.
func (w *Writer) Delete(ctx context.Context, res *metadata.Resource, id string) error {
	pb := w.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", res.Table, res.PrimaryKey.Column, pb.Add(id))
	affected, err := store.Exec(ctx, w.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return w.db.Dialect.MapError(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Fetch loads a record by primary key.
func (w *Writer) Fetch(ctx context.Context, res *metadata.Resource, id string) (map[string]any, error) {
	pb := w.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(res.ColumnNames(), ", "), res.Table, res.PrimaryKey.Column, pb.Add(id))
	return store.QueryRow(ctx, w.db.DB, sqlStr, pb.Params()...)
}

// split separates direct column values from nested association blocks.
func (w *Writer) split(res *metadata.Resource, attrs map[string]any) (map[string]any, map[string]any) {
	direct := make(map[string]any)
	nested := make(map[string]any)
	for key, value := range attrs {
		if res.HasColumn(key) {
			direct[key] = value
			continue
		}
		if name, ok := strings.CutSuffix(key, "_attributes"); ok {
			if assoc := w.registry.Association(res.Name, name); assoc != nil {
				nested[name] = value
			}
		}
	}
	return direct, nested
}

func (w *Writer) bindValue(col *metadata.Column, v any) any {
	if !col.Array {
		return v
	}
	switch vals := v.(type) {
	case []any:
		out := make([]string, len(vals))
		for i, e := range vals {
			out[i] = fmt.Sprintf("%v", e)
		}
		return w.db.Dialect.ArrayParam(out)
	case []string:
		return w.db.Dialect.ArrayParam(vals)
	default:
		return v
	}
}

// writeNested applies nested blocks: items with _destroy are removed,
// items with an id updated, the rest inserted with the parent key set.
func (w *Writer) writeNested(ctx context.Context, res *metadata.Resource, parentID any, nested map[string]any) error {
	for name, value := range nested {
		assoc := w.registry.Association(res.Name, name)
		target := w.registry.GetResource(assoc.Target)
		if target == nil {
			continue
		}

		var items []map[string]any
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					items = append(items, m)
				}
			}
		case map[string]any:
			items = append(items, v)
		}

		for _, item := range items {
			if err := w.writeNestedItem(ctx, assoc, target, parentID, item); err != nil {
				return fmt.Errorf("nested %s: %w", name, err)
			}
		}
	}
	return nil
}

func (w *Writer) writeNestedItem(ctx context.Context, assoc *metadata.Association, target *metadata.Resource, parentID any, item map[string]any) error {
	childID, hasID := item[target.PrimaryKey.Column]

	if destroyRequested(item["_destroy"]) {
		if !hasID {
			return nil
		}
		return w.Delete(ctx, target, fmt.Sprintf("%v", childID))
	}

	attrs := make(map[string]any, len(item)+1)
	for k, v := range item {
		if k == "_destroy" {
			continue
		}
		attrs[k] = v
	}
	attrs[assoc.ForeignKey] = parentID

	if hasID {
		_, err := w.Update(ctx, target, fmt.Sprintf("%v", childID), attrs)
		return err
	}
	_, err := w.Create(ctx, target, attrs)
	return err
}

func destroyRequested(v any) bool {
	switch d := v.(type) {
	case bool:
		return d
	case string:
		return d == "1" || strings.EqualFold(d, "true")
	case float64:
		return d == 1
	default:
		return false
	}
}
