package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"steward/internal/actor"
	"steward/internal/policy"
	"steward/internal/store"
)

func auditFixture(t *testing.T) (*store.Store, *Log) {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewMemory(ctx)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	log := NewLog(db, policy.NewSensitiveFilter(), zap.NewNop(), 100, time.Minute)
	t.Cleanup(log.Stop)
	return db, log
}

func TestLog_FlushWritesBatchWithMaskedChanges(t *testing.T) {
	db, log := auditFixture(t)
	ctx := context.Background()
	id := &actor.Identity{ID: "a1", Email: "alice@example.com"}

	log.Record(id, "user", "u1", ActionUpdate, map[string]any{
		"name":     "Alice",
		"password": "hunter2",
	})
	log.Record(nil, "user", "u2", ActionDelete, nil)

	// Nothing reaches the table until a flush.
	count, err := store.QueryCount(ctx, db.DB, "SELECT COUNT(*) FROM _audit_logs")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("premature writes: %d", count)
	}

	log.Flush()

	rows, err := store.QueryRows(ctx, db.DB,
		"SELECT actor_id, resource_id, action, changes FROM _audit_logs ORDER BY resource_id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}

	var changes map[string]any
	if err := json.Unmarshal([]byte(rows[0]["changes"].(string)), &changes); err != nil {
		t.Fatalf("decode changes: %v", err)
	}
	if changes["name"] != "Alice" || changes["password"] != "[FILTERED]" {
		t.Fatalf("changes = %v", changes)
	}
	if rows[0]["actor_id"] != "a1" {
		t.Fatalf("actor_id = %v", rows[0]["actor_id"])
	}

	if rows[1]["action"] != ActionDelete || rows[1]["changes"].(string) != "{}" {
		t.Fatalf("anonymous row = %v", rows[1])
	}

	// A second flush with an empty buffer writes nothing.
	log.Flush()
	count, _ = store.QueryCount(ctx, db.DB, "SELECT COUNT(*) FROM _audit_logs")
	if count != 2 {
		t.Fatalf("count after empty flush = %d", count)
	}
}

func TestLog_RecentFiltersAndSearchesTheTrail(t *testing.T) {
	_, log := auditFixture(t)
	ctx := context.Background()

	log.Record(&actor.Identity{ID: "a1", Email: "alice@example.com"}, "user", "u1", ActionCreate, nil)
	time.Sleep(time.Millisecond)
	log.Record(&actor.Identity{ID: "a2", Email: "bob@example.com"}, "post", "p1", ActionUpdate,
		map[string]any{"token": "s3cret"})
	log.Flush()

	entries, total, err := log.Recent(ctx, ListQuery{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("total=%d entries=%d", total, len(entries))
	}
	if entries[0].ResourceID != "p1" {
		t.Fatalf("newest entry = %+v", entries[0])
	}
	if entries[0].Changes["token"] != "[FILTERED]" {
		t.Fatalf("changes = %v", entries[0].Changes)
	}
	if entries[0].PerformedAt.IsZero() {
		t.Fatal("performed_at lost in round trip")
	}

	entries, total, _ = log.Recent(ctx, ListQuery{Action: ActionCreate})
	if total != 1 || entries[0].ResourceType != "user" {
		t.Fatalf("action filter total=%d entries=%+v", total, entries)
	}

	entries, total, _ = log.Recent(ctx, ListQuery{Term: "BOB"})
	if total != 1 || entries[0].ActorEmail != "bob@example.com" {
		t.Fatalf("term filter total=%d entries=%+v", total, entries)
	}

	// Conditions intersect.
	if _, total, _ = log.Recent(ctx, ListQuery{ResourceType: "user", Term: "bob"}); total != 0 {
		t.Fatalf("disjoint filters matched %d", total)
	}

	entries, total, _ = log.Recent(ctx, ListQuery{Limit: 1, Offset: 1})
	if total != 2 || len(entries) != 1 || entries[0].ResourceID != "u1" {
		t.Fatalf("paging total=%d entries=%+v", total, entries)
	}
}

func TestLog_NeverRecordsItself(t *testing.T) {
	db, log := auditFixture(t)

	log.Record(nil, "audit_log", "x", ActionDelete, nil)
	log.Flush()

	count, err := store.QueryCount(context.Background(), db.DB, "SELECT COUNT(*) FROM _audit_logs")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("audit log recorded itself %d times", count)
	}
}
