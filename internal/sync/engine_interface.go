// Package sync drains the on-device entry queue into the remote backend.
package sync

import (
	"context"
	"time"

	"github.com/kimhsiao/damagelog/backend/internal/models"
)

// Remote is the hosted backend the engine writes to.
type Remote interface {
	// InsertRecord inserts a row. Inserting an existing primary key must not
	// create a duplicate.
	InsertRecord(ctx context.Context, table string, payload map[string]any) (*models.InsertedRow, error)

	// UploadBlob stores data at bucket/path and returns the stored reference.
	UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)

	// PublicURL returns the URL a stored blob is served from.
	PublicURL(bucket, path string) string
}

// EntryStore is the durable queue the engine drains.
type EntryStore interface {
	ListActionable(ctx context.Context) ([]*models.QueuedEntry, error)
	UpdateStatus(ctx context.Context, id string, status models.EntryStatus, errMsg string) error
	Remove(ctx context.Context, id string) error
}

// OnlineChecker reports current reachability.
type OnlineChecker interface {
	Online() bool
}

// SyncEventType identifies a SyncEvent.
type SyncEventType string

const (
	SyncEventStarted     SyncEventType = "drain.started"
	SyncEventEntrySynced SyncEventType = "entry.synced"
	SyncEventEntryFailed SyncEventType = "entry.failed"
	SyncEventImageFailed SyncEventType = "image.failed"
	SyncEventCompleted   SyncEventType = "drain.completed"
	SyncEventSkipped     SyncEventType = "drain.skipped"
)

// Reasons a drain request did nothing.
const (
	SkipInProgress = "in_progress"
	SkipOffline    = "offline"
)

// SyncEvent is emitted while a drain runs.
type SyncEvent struct {
	Type      SyncEventType `json:"type"`
	EntryID   string        `json:"entry_id,omitempty"`
	Position  int           `json:"position,omitempty"`
	Error     string        `json:"error,omitempty"`
	Result    *DrainResult  `json:"result,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// SyncEventHandler receives sync events. Handlers run synchronously on the
// draining goroutine and must not block.
type SyncEventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// SyncEventHandlerFunc adapts a function to SyncEventHandler.
type SyncEventHandlerFunc func(event SyncEvent)

// OnSyncEvent calls f(event).
func (f SyncEventHandlerFunc) OnSyncEvent(event SyncEvent) {
	f(event)
}

// DrainResult summarizes one drain.
type DrainResult struct {
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Duration      time.Duration `json:"duration"`
	Attempted     int           `json:"attempted"`
	Synced        int           `json:"synced"`
	Failed        int           `json:"failed"`
	ImageFailures int           `json:"image_failures"`
	Skipped       string        `json:"skipped,omitempty"`
}

// Ran reports whether the drain processed the queue at all.
func (r *DrainResult) Ran() bool {
	return r != nil && r.Skipped == ""
}

// SyncEngineInterface is the engine surface used by the scheduler and status observer.
type SyncEngineInterface interface {
	SyncPendingEntries(ctx context.Context) (*DrainResult, error)
	IsSyncing() bool
	AddEventHandler(handler SyncEventHandler)
	LastResult() *DrainResult
	LastError() error
}
