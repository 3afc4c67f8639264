package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"steward/internal/metadata"
	"steward/internal/policy"
	"steward/internal/query"
	"steward/internal/storage"
	"steward/internal/store"
)

// Generator runs one export job to completion: compose the frozen
// collection query, stream it in bounded batches through a CSV writer,
// attach the file, then write the terminal status. It never retries;
// errors are recorded on the job and returned to the caller, who owns
// retry policy.
type Generator struct {
	exports  *Store
	db       *store.Store
	registry *metadata.Registry
	composer *query.Composer
	policy   *policy.Policy
	storage  storage.Backend
	logger   *zap.Logger

	batchSize     int
	retentionDays int
}

func NewGenerator(exports *Store, db *store.Store, reg *metadata.Registry, composer *query.Composer,
	pol *policy.Policy, backend storage.Backend, logger *zap.Logger, batchSize, retentionDays int) *Generator {
	if batchSize < 1 {
		batchSize = 500
	}
	if retentionDays < 1 {
		retentionDays = 7
	}
	return &Generator{
		exports:       exports,
		db:            db,
		registry:      reg,
		composer:      composer,
		policy:        pol,
		storage:       backend,
		logger:        logger,
		batchSize:     batchSize,
		retentionDays: retentionDays,
	}
}

// Generate processes the job with the given id. Re-running a job that
// already reached a terminal state is a no-op, so a redelivered task
// cannot corrupt a finished export.
func (g *Generator) Generate(ctx context.Context, jobID string) error {
	job, err := g.exports.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load export %s: %w", jobID, err)
	}
	if job.Status == StatusReady || job.Status == StatusFailed {
		g.logger.Info("export already finished", zap.String("id", job.ID), zap.String("status", job.Status))
		return nil
	}

	if err := g.exports.MarkProcessing(ctx, job.ID); err != nil {
		return fmt.Errorf("mark export %s processing: %w", job.ID, err)
	}

	if err := g.run(ctx, job); err != nil {
		if markErr := g.exports.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			g.logger.Error("mark export failed", zap.String("id", job.ID), zap.Error(markErr))
		}
		return fmt.Errorf("export %s: %w", job.ID, err)
	}
	return nil
}

func (g *Generator) run(ctx context.Context, job *Job) error {
	res := g.registry.GetResource(job.ResourceName)
	if res == nil {
		return fmt.Errorf("unknown resource %q", job.ResourceName)
	}

	attrs := g.exportAttributes(res, job.Attributes)
	scope := g.composer.Scope(res, query.ListRequest{
		Search:    job.Snapshot.Search,
		Filters:   job.Snapshot.Filters,
		Sort:      job.Snapshot.Sort,
		Direction: job.Snapshot.Direction,
	})

	expiresAt := time.Now().UTC().AddDate(0, 0, g.retentionDays)

	if g.storage == nil {
		g.logger.Warn("no storage backend configured, export kept without file", zap.String("id", job.ID))
		count, err := g.writeCSV(ctx, io.Discard, attrs, scope)
		if err != nil {
			return err
		}
		return g.exports.MarkReady(ctx, job.ID, count, "", expiresAt)
	}

	// The CSV streams through a pipe into the backend, so memory stays
	// bounded by one batch no matter how large the collection is.
	pr, pw := io.Pipe()
	var count int64
	var writeErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		count, writeErr = g.writeCSV(ctx, pw, attrs, scope)
		pw.CloseWithError(writeErr)
	}()

	filePath, saveErr := g.storage.Save(ctx, job.Token, job.ResourceName+".csv", pr)
	if saveErr != nil {
		pr.CloseWithError(saveErr)
	}
	<-done
	if writeErr != nil {
		return writeErr
	}
	if saveErr != nil {
		return fmt.Errorf("attach file: %w", saveErr)
	}

	return g.exports.MarkReady(ctx, job.ID, count, filePath, expiresAt)
}

// writeCSV streams the scoped rows into out in bounded batches and
// returns the number of data rows written.
func (g *Generator) writeCSV(ctx context.Context, out io.Writer, attrs []string, scope *query.Scope) (int64, error) {
	w := csv.NewWriter(out)
	if err := w.Write(attrs); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	var count int64
	for offset := 0; ; offset += g.batchSize {
		sqlStr, params := scope.SelectSQL(g.batchSize, offset)
		rows, err := store.QueryRows(ctx, g.db.DB, sqlStr, params...)
		if err != nil {
			return count, fmt.Errorf("fetch batch at %d: %w", offset, err)
		}

		for _, row := range rows {
			record := make([]string, len(attrs))
			for i, attr := range attrs {
				record[i] = serializeCell(row[attr])
			}
			if err := w.Write(record); err != nil {
				return count, fmt.Errorf("write record: %w", err)
			}
			count++
		}
		if len(rows) < g.batchSize {
			break
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return count, fmt.Errorf("flush csv: %w", err)
	}
	return count, nil
}

// exportAttributes keeps only requested attributes that exist on the
// resource, falling back to the displayable defaults.
func (g *Generator) exportAttributes(res *metadata.Resource, requested []string) []string {
	var attrs []string
	for _, name := range requested {
		if res.HasColumn(name) {
			attrs = append(attrs, name)
		}
	}
	if len(attrs) == 0 {
		attrs = g.policy.DisplayableAttributes(res)
	}
	return attrs
}

// serializeCell renders one CSV cell: empty for null, literal
// true/false for booleans, ISO-8601 for timestamps, string form for
// everything else.
func serializeCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "true"
		}
		return "false"
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
