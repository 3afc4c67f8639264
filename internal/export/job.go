// Package export implements asynchronous CSV generation over filtered,
// sorted collections: tracked jobs, a persistence layer, a batch
// generator, and a worker pool.
package export

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Snapshot freezes the collection request an export was created from,
// so generation reproduces exactly what the actor was looking at.
type Snapshot struct {
	Search    string            `json:"search"`
	Filters   map[string]string `json:"filters"`
	Sort      string            `json:"sort"`
	Direction string            `json:"direction"`
}

// Job is one tracked export.
type Job struct {
	ID           string
	Token        string
	ActorID      string
	ResourceName string
	TypeName     string
	Snapshot     Snapshot
	Attributes   []string
	Status       string
	RecordsCount int64
	ErrorMessage string
	FilePath     string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ExpiresAt    *time.Time
}

// Expired reports whether a ready export is past its retention window.
// Expiry is a download-time check; the status stays ready.
func (j *Job) Expired(now time.Time) bool {
	return j.ExpiresAt != nil && now.After(*j.ExpiresAt)
}

// Downloadable reports whether the export file can be served.
func (j *Job) Downloadable(now time.Time) bool {
	return j.Status == StatusReady && j.FilePath != "" && !j.Expired(now)
}

// NewToken returns a URL-safe token with 192 bits of entropy.
func NewToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate export token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
