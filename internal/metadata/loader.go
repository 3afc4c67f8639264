package metadata

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"steward/internal/store"
)

// LoadAll reads all resource and association definitions from the
// database and populates the registry.
func LoadAll(ctx context.Context, s *store.Store, reg *Registry, log *zap.Logger) error {
	resources, err := loadResources(ctx, s, log)
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}

	associations, err := loadAssociations(ctx, s, log)
	if err != nil {
		return fmt.Errorf("load associations: %w", err)
	}

	reg.Load(resources, associations)
	log.Info("registry loaded",
		zap.Int("resources", len(resources)),
		zap.Int("associations", len(associations)))
	return nil
}

// Reload is an alias for LoadAll, called on explicit reload requests.
func Reload(ctx context.Context, s *store.Store, reg *Registry, log *zap.Logger) error {
	return LoadAll(ctx, s, reg, log)
}

// VerifyTables compares every registered resource against the live
// schema and warns about missing tables or columns the declarations
// still reference. Drift never blocks startup; queries against a
// drifted resource fail on their own.
func VerifyTables(ctx context.Context, s *store.Store, reg *Registry, log *zap.Logger) {
	for _, res := range reg.AllResources() {
		exists, err := s.Dialect.TableExists(ctx, s.DB, res.Table)
		if err != nil {
			log.Warn("table check failed", zap.String("table", res.Table), zap.Error(err))
			continue
		}
		if !exists {
			log.Warn("declared table missing", zap.String("resource", res.Name), zap.String("table", res.Table))
			continue
		}

		live, err := s.Dialect.GetColumns(ctx, s.DB, res.Table)
		if err != nil {
			log.Warn("column check failed", zap.String("table", res.Table), zap.Error(err))
			continue
		}
		for _, col := range res.Columns {
			if _, ok := live[col.Name]; !ok {
				log.Warn("declared column missing",
					zap.String("resource", res.Name),
					zap.String("table", res.Table),
					zap.String("column", col.Name))
			}
		}
	}
}

func loadResources(ctx context.Context, s *store.Store, log *zap.Logger) ([]*Resource, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT name, definition FROM _resources ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []*Resource
	for rows.Next() {
		var name string
		var defJSON []byte
		if err := rows.Scan(&name, &defJSON); err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}

		var res Resource
		if err := json.Unmarshal(defJSON, &res); err != nil {
			log.Warn("skipping resource with invalid definition",
				zap.String("resource", name), zap.Error(err))
			continue
		}
		resources = append(resources, &res)
	}
	return resources, rows.Err()
}

func loadAssociations(ctx context.Context, s *store.Store, log *zap.Logger) ([]*Association, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT name, definition FROM _associations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var associations []*Association
	for rows.Next() {
		var name string
		var defJSON []byte
		if err := rows.Scan(&name, &defJSON); err != nil {
			return nil, fmt.Errorf("scan association row: %w", err)
		}

		var assoc Association
		if err := json.Unmarshal(defJSON, &assoc); err != nil {
			log.Warn("skipping association with invalid definition",
				zap.String("association", name), zap.Error(err))
			continue
		}
		associations = append(associations, &assoc)
	}
	return associations, rows.Err()
}
