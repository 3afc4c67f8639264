package query

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"steward/internal/metadata"
	"steward/internal/store"
)

// Counter computes has-many association counts for a single record.
// Counts are presentation data: a failing count logs a warning and
// reports zero instead of failing the request.
type Counter struct {
	registry *metadata.Registry
	store    *store.Store
	logger   *zap.Logger

	parallel      bool
	maxConcurrent int
}

func NewCounter(reg *metadata.Registry, st *store.Store, logger *zap.Logger, parallel bool, maxConcurrent int) *Counter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Counter{
		registry:      reg,
		store:         st,
		logger:        logger,
		parallel:      parallel,
		maxConcurrent: maxConcurrent,
	}
}

// Counts returns a map of association name to row count for every
// countable has-many association of the resource.
func (c *Counter) Counts(ctx context.Context, res *metadata.Resource, record map[string]any) map[string]int64 {
	var assocs []*metadata.Association
	for _, assoc := range c.registry.AssociationsFor(res.Name) {
		if assoc.Countable() && c.registry.GetResource(assoc.Target) != nil {
			assocs = append(assocs, assoc)
		}
	}
	if len(assocs) == 0 {
		return map[string]int64{}
	}

	pk := record[res.PrimaryKey.Column]
	out := make(map[string]int64, len(assocs))

	if !c.parallel || len(assocs) == 1 {
		for _, assoc := range assocs {
			out[assoc.Name] = c.countOne(ctx, res, assoc, pk)
		}
		return out
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.maxConcurrent)
	for _, assoc := range assocs {
		wg.Add(1)
		sem <- struct{}{}
		go func(assoc *metadata.Association) {
			defer wg.Done()
			defer func() { <-sem }()
			n := c.countOne(ctx, res, assoc, pk)
			mu.Lock()
			out[assoc.Name] = n
			mu.Unlock()
		}(assoc)
	}
	wg.Wait()
	return out
}

func (c *Counter) countOne(ctx context.Context, res *metadata.Resource, assoc *metadata.Association, pk any) int64 {
	target := c.registry.GetResource(assoc.Target)
	ph := c.store.Dialect.Placeholder(1)
	sqlStr := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s", target.Table, assoc.ForeignKey, ph)

	n, err := store.QueryCount(ctx, c.store.DB, sqlStr, pk)
	if err != nil {
		c.logger.Warn("association count failed",
			zap.String("resource", res.Name),
			zap.String("association", assoc.Name),
			zap.Error(err))
		return 0
	}
	return n
}
