package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"steward/internal/store"
)

// ListQuery narrows the audit trail read surface. Term matches the
// actor email, resource type, and action case-insensitively.
type ListQuery struct {
	Action       string
	ResourceType string
	Term         string
	Limit        int
	Offset       int
}

// Recent returns matching entries, newest first, with the total match
// count. Only flushed entries are visible; callers that need the
// current buffer flush first.
func (l *Log) Recent(ctx context.Context, q ListQuery) ([]Entry, int64, error) {
	pb := l.store.Dialect.NewParamBuilder()
	var conds []string
	if q.Action != "" {
		conds = append(conds, "action = "+pb.Add(q.Action))
	}
	if q.ResourceType != "" {
		conds = append(conds, "resource_type = "+pb.Add(q.ResourceType))
	}
	if term := strings.TrimSpace(q.Term); term != "" {
		like := pb.Add("%" + strings.ToLower(term) + "%")
		conds = append(conds, fmt.Sprintf(
			"(LOWER(actor_email) LIKE %s OR LOWER(resource_type) LIKE %s OR LOWER(action) LIKE %s)",
			like, like, like))
	}
	whereSQL := ""
	if len(conds) > 0 {
		whereSQL = " WHERE " + strings.Join(conds, " AND ")
	}

	total, err := store.QueryCount(ctx, l.store.DB, "SELECT COUNT(*) FROM _audit_logs"+whereSQL, pb.Params()...)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	limit := q.Limit
	if limit < 1 {
		limit = 25
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	sqlStr := fmt.Sprintf("SELECT * FROM _audit_logs%s ORDER BY performed_at DESC LIMIT %s OFFSET %s",
		whereSQL, pb.Add(limit), pb.Add(offset))
	rows, err := store.QueryRows(ctx, l.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, rowToEntry(row))
	}
	return entries, total, nil
}

func rowToEntry(row map[string]any) Entry {
	e := Entry{
		ID:           text(row["id"]),
		ActorID:      text(row["actor_id"]),
		ActorEmail:   text(row["actor_email"]),
		ResourceType: text(row["resource_type"]),
		ResourceID:   text(row["resource_id"]),
		Action:       text(row["action"]),
	}
	if raw := text(row["changes"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &e.Changes)
	}
	if raw := text(row["context"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &e.Context)
	}
	switch v := row["performed_at"].(type) {
	case time.Time:
		e.PerformedAt = v
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.PerformedAt = parsed
		}
	}
	return e
}

func text(v any) string {
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
