package query

import (
	"context"
	"fmt"
	"strings"

	"steward/internal/metadata"
	"steward/internal/store"
)

// Loader attaches associated records to already-fetched rows. To-one
// associations are batch loaded with a single IN query per association
// and merged under the association name.
type Loader struct {
	registry *metadata.Registry
	store    *store.Store
}

func NewLoader(reg *metadata.Registry, st *store.Store) *Loader {
	return &Loader{registry: reg, store: st}
}

// Attach loads the named associations for rows of a resource, writing
// each related record (or nil) under the association name. Unknown or
// non-preloadable names are skipped.
func (l *Loader) Attach(ctx context.Context, res *metadata.Resource, rows []map[string]any, includes []string) error {
	if len(rows) == 0 || len(includes) == 0 {
		return nil
	}

	for _, name := range includes {
		assoc := l.registry.Association(res.Name, name)
		if assoc == nil || !assoc.Preloadable() {
			continue
		}
		if err := l.attachOne(ctx, res, rows, assoc); err != nil {
			return fmt.Errorf("load %s.%s: %w", res.Name, name, err)
		}
	}
	return nil
}

func (l *Loader) attachOne(ctx context.Context, res *metadata.Resource, rows []map[string]any, assoc *metadata.Association) error {
	target := l.registry.GetResource(assoc.Target)
	if target == nil {
		return nil
	}

	var keyColumn string
	switch assoc.Kind {
	case metadata.BelongsTo:
		keyColumn = assoc.ForeignKey
	case metadata.HasOne:
		keyColumn = res.PrimaryKey.Column
	default:
		return nil
	}

	keys := distinctValues(rows, keyColumn)
	if len(keys) == 0 {
		for _, row := range rows {
			row[assoc.Name] = nil
		}
		return nil
	}

	var matchColumn string
	if assoc.Kind == metadata.BelongsTo {
		matchColumn = target.PrimaryKey.Column
	} else {
		matchColumn = assoc.ForeignKey
	}

	pb := l.store.Dialect.NewParamBuilder()
	inExpr := l.store.Dialect.InExpr(fmt.Sprintf("%s.%s", target.Table, matchColumn), pb, keys)
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(target.ColumnNames(), ", "), target.Table, inExpr)

	related, err := store.QueryRows(ctx, l.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return err
	}

	byKey := make(map[string]map[string]any, len(related))
	for _, rel := range related {
		byKey[keyString(rel[matchColumn])] = rel
	}
	for _, row := range rows {
		if rel, ok := byKey[keyString(row[keyColumn])]; ok {
			row[assoc.Name] = rel
		} else {
			row[assoc.Name] = nil
		}
	}
	return nil
}

func distinctValues(rows []map[string]any, column string) []any {
	seen := make(map[string]struct{}, len(rows))
	var out []any
	for _, row := range rows {
		v, ok := row[column]
		if !ok || v == nil {
			continue
		}
		k := keyString(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func keyString(v any) string {
	return fmt.Sprintf("%v", v)
}
