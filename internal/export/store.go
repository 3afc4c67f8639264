package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"steward/internal/store"
)

// maxErrorLength bounds the stored failure message.
const maxErrorLength = 500

// Store persists export jobs in _exports.
type Store struct {
	db *store.Store
}

func NewStore(db *store.Store) *Store {
	return &Store{db: db}
}

// Create inserts a new pending job with a fresh id and token.
func (s *Store) Create(ctx context.Context, actorID, resourceName, typeName string, snap Snapshot, attributes []string) (*Job, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:           uuid.NewString(),
		Token:        token,
		ActorID:      actorID,
		ResourceName: resourceName,
		TypeName:     typeName,
		Snapshot:     snap,
		Attributes:   attributes,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	filters, err := json.Marshal(snapFilters(snap))
	if err != nil {
		return nil, fmt.Errorf("marshal filters: %w", err)
	}
	attrs, err := json.Marshal(attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(`INSERT INTO _exports
		(id, token, actor_id, resource_name, type_name, search, sort, direction, filters, attributes, status, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(job.ID), pb.Add(job.Token), pb.Add(job.ActorID),
		pb.Add(job.ResourceName), pb.Add(job.TypeName),
		pb.Add(snap.Search), pb.Add(snap.Sort), pb.Add(snap.Direction),
		pb.Add(string(filters)), pb.Add(string(attrs)),
		pb.Add(StatusPending), pb.Add(timeParam(job.CreatedAt)))

	if _, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...); err != nil {
		return nil, s.db.Dialect.MapError(err)
	}
	return job, nil
}

// Get loads a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	return s.getBy(ctx, "id", id)
}

// GetByToken loads a job by its download token.
func (s *Store) GetByToken(ctx context.Context, token string) (*Job, error) {
	return s.getBy(ctx, "token", token)
}

func (s *Store) getBy(ctx context.Context, column, value string) (*Job, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT * FROM _exports WHERE %s = %s", column, pb.Add(value))
	row, err := store.QueryRow(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	return rowToJob(row)
}

// List returns an actor's jobs, newest first.
func (s *Store) List(ctx context.Context, actorID string) ([]*Job, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT * FROM _exports WHERE actor_id = %s ORDER BY created_at DESC", pb.Add(actorID))
	rows, err := store.QueryRows(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(rows))
	for _, row := range rows {
		job, err := rowToJob(row)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// MarkProcessing records the start of generation.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE _exports SET status = %s, started_at = %s WHERE id = %s",
		pb.Add(StatusProcessing), pb.Add(timeParam(time.Now())), pb.Add(id))
	_, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	return err
}

// MarkReady records a successful generation: count, file, completion
// and expiry in one write. This is the terminal transition and must be
// the last operation of a generation run.
func (s *Store) MarkReady(ctx context.Context, id string, recordsCount int64, filePath string, expiresAt time.Time) error {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"UPDATE _exports SET status = %s, records_count = %s, file_path = %s, completed_at = %s, expires_at = %s WHERE id = %s",
		pb.Add(StatusReady), pb.Add(recordsCount), pb.Add(filePath), pb.Add(timeParam(time.Now())), pb.Add(timeParam(expiresAt)), pb.Add(id))
	_, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	return err
}

// MarkFailed records a failed generation with a bounded error message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	if len(message) > maxErrorLength {
		message = message[:maxErrorLength]
	}
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE _exports SET status = %s, error_message = %s, completed_at = %s WHERE id = %s",
		pb.Add(StatusFailed), pb.Add(message), pb.Add(timeParam(time.Now())), pb.Add(id))
	_, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	return err
}

// Delete removes the tracking record. The caller removes the attached
// file first, while the path is still known.
func (s *Store) Delete(ctx context.Context, id string) error {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM _exports WHERE id = %s", pb.Add(id))
	_, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	return err
}

func snapFilters(snap Snapshot) map[string]string {
	if snap.Filters == nil {
		return map[string]string{}
	}
	return snap.Filters
}

func rowToJob(row map[string]any) (*Job, error) {
	job := &Job{
		ID:           asString(row["id"]),
		Token:        asString(row["token"]),
		ActorID:      asString(row["actor_id"]),
		ResourceName: asString(row["resource_name"]),
		TypeName:     asString(row["type_name"]),
		Status:       asString(row["status"]),
		ErrorMessage: asString(row["error_message"]),
		FilePath:     asString(row["file_path"]),
		RecordsCount: asInt64(row["records_count"]),
		Snapshot: Snapshot{
			Search:    asString(row["search"]),
			Sort:      asString(row["sort"]),
			Direction: asString(row["direction"]),
		},
	}

	if err := json.Unmarshal([]byte(jsonOrDefault(row["filters"], "{}")), &job.Snapshot.Filters); err != nil {
		return nil, fmt.Errorf("decode export filters: %w", err)
	}
	if err := json.Unmarshal([]byte(jsonOrDefault(row["attributes"], "[]")), &job.Attributes); err != nil {
		return nil, fmt.Errorf("decode export attributes: %w", err)
	}

	if t, ok := asTime(row["created_at"]); ok {
		job.CreatedAt = t
	}
	job.StartedAt = asTimePtr(row["started_at"])
	job.CompletedAt = asTimePtr(row["completed_at"])
	job.ExpiresAt = asTimePtr(row["expires_at"])
	return job, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// timeParam is the canonical timestamp binding. Drivers differ in how
// they serialize time.Time, so timestamps go in as text. The layout is
// fixed width so the stored column sorts chronologically.
func timeParam(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func asTimePtr(v any) *time.Time {
	if t, ok := asTime(v); ok {
		return &t
	}
	return nil
}

func jsonOrDefault(v any, def string) string {
	s := asString(v)
	if s == "" {
		return def
	}
	return s
}
