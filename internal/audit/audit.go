// Package audit records who changed what through the admin surface.
// Entries are buffered in memory and flushed in batches; audit writes
// never fail the request that produced them.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"steward/internal/actor"
	"steward/internal/policy"
	"steward/internal/store"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionExport = "export"
)

// timeLayout is fixed width so performed_at sorts chronologically as
// text on both dialects.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded admin action. Changes holds the written
// attributes with sensitive values already masked.
type Entry struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id"`
	ActorEmail   string         `json:"actor_email"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Changes      map[string]any `json:"changes"`
	Context      map[string]any `json:"context,omitempty"`
	PerformedAt  time.Time      `json:"performed_at"`
}

// Log buffers entries and flushes them to _audit_logs on a timer or
// when the buffer fills.
type Log struct {
	mu      sync.Mutex
	entries []Entry

	store   *store.Store
	filter  *policy.SensitiveFilter
	logger  *zap.Logger
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

func NewLog(st *store.Store, filter *policy.SensitiveFilter, logger *zap.Logger, maxSize int, flushInterval time.Duration) *Log {
	if maxSize < 1 {
		maxSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	l := &Log{
		store:   st,
		filter:  filter,
		logger:  logger,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	l.ticker = time.NewTicker(flushInterval)
	go l.run()
	return l
}

func (l *Log) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.ticker.C:
			l.Flush()
		}
	}
}

// Record enqueues an entry for the given action. Change values are
// masked before they enter the buffer so secrets never sit in memory
// longer than the request. Actions against the audit log itself are
// not recorded.
func (l *Log) Record(id *actor.Identity, resourceType, resourceID, action string, changes map[string]any) {
	if resourceType == "audit_log" {
		return
	}

	entry := Entry{
		ID:           uuid.NewString(),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		Changes:      l.filter.MaskValues(changes),
		PerformedAt:  time.Now().UTC(),
	}
	if id != nil {
		entry.ActorID = id.ID
		entry.ActorEmail = id.Email
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	shouldFlush := len(l.entries) >= l.maxSize
	l.mu.Unlock()
	if shouldFlush {
		go l.Flush()
	}
}

// Flush writes all buffered entries in a single batch insert. Failures
// are logged and the batch is dropped.
func (l *Log) Flush() {
	l.mu.Lock()
	if len(l.entries) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.entries
	l.entries = nil
	l.mu.Unlock()

	pb := l.store.Dialect.NewParamBuilder()
	var tuples []string
	for _, e := range batch {
		changes, _ := json.Marshal(e.Changes)
		if e.Changes == nil {
			changes = []byte("{}")
		}
		ctxJSON, _ := json.Marshal(e.Context)
		if e.Context == nil {
			ctxJSON = []byte("{}")
		}

		ph := []string{
			pb.Add(e.ID),
			pb.Add(e.ActorID),
			pb.Add(e.ActorEmail),
			pb.Add(e.ResourceType),
			pb.Add(e.ResourceID),
			pb.Add(e.Action),
			pb.Add(string(changes)),
			pb.Add(string(ctxJSON)),
			pb.Add(e.PerformedAt.UTC().Format(timeLayout)),
		}
		tuples = append(tuples, "("+strings.Join(ph, ",")+")")
	}

	sqlStr := fmt.Sprintf(
		"INSERT INTO _audit_logs (id, actor_id, actor_email, resource_type, resource_id, action, changes, context, performed_at) VALUES %s",
		strings.Join(tuples, ","))

	if _, err := store.Exec(context.Background(), l.store.DB, sqlStr, pb.Params()...); err != nil {
		l.logger.Error("audit flush failed", zap.Int("entries", len(batch)), zap.Error(err))
	}
}

// Stop halts the ticker and flushes what remains.
func (l *Log) Stop() {
	l.ticker.Stop()
	close(l.done)
	l.Flush()
}
