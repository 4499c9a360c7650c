package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
	"github.com/kimhsiao/damagelog/backend/internal/models"
	"github.com/kimhsiao/damagelog/backend/internal/sync/storage"
	"github.com/kimhsiao/damagelog/backend/internal/uuid"
)

// EngineConfig names the remote tables and buckets entries are written to.
type EngineConfig struct {
	ReportsTable string
	ImagesTable  string
	ImageBucket  string
	VoiceBucket  string
}

// DefaultEngineConfig returns the default remote layout.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ReportsTable: "damage_reports",
		ImagesTable:  "damage_report_images",
		ImageBucket:  "damage-images",
		VoiceBucket:  "damage-voice",
	}
}

// SyncEngine drains queued entries into the remote backend, one drain at a time.
type SyncEngine struct {
	store  EntryStore
	remote Remote
	online OnlineChecker
	config EngineConfig
	now    func() time.Time

	syncing atomic.Bool

	mu         gosync.RWMutex
	handlers   []SyncEventHandler
	lastResult *DrainResult
	lastErr    error
}

// NewSyncEngine creates a SyncEngine.
func NewSyncEngine(store EntryStore, remote Remote, online OnlineChecker, config EngineConfig) *SyncEngine {
	defaults := DefaultEngineConfig()
	if config.ReportsTable == "" {
		config.ReportsTable = defaults.ReportsTable
	}
	if config.ImagesTable == "" {
		config.ImagesTable = defaults.ImagesTable
	}
	if config.ImageBucket == "" {
		config.ImageBucket = defaults.ImageBucket
	}
	if config.VoiceBucket == "" {
		config.VoiceBucket = defaults.VoiceBucket
	}

	return &SyncEngine{
		store:  store,
		remote: remote,
		online: online,
		config: config,
		now:    time.Now,
	}
}

// IsSyncing reports whether a drain is in flight.
func (e *SyncEngine) IsSyncing() bool {
	return e.syncing.Load()
}

// AddEventHandler registers a handler for sync events.
func (e *SyncEngine) AddEventHandler(handler SyncEventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	e.mu.Unlock()
}

// LastResult returns the result of the last drain that ran, or nil.
func (e *SyncEngine) LastResult() *DrainResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastResult
}

// LastError returns the error of the last drain that ran, or nil.
func (e *SyncEngine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

func (e *SyncEngine) emitEvent(event SyncEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	e.mu.RLock()
	handlers := make([]SyncEventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	for _, h := range handlers {
		h.OnSyncEvent(event)
	}
}

// SyncPendingEntries drains every actionable entry in queue order.
//
// A request made while another drain runs, or while offline, returns at once with
// Skipped set. Entry failures never abort the drain: the entry is marked error and
// the next one is processed. The returned error is non-nil only when the queue
// could not be read or ctx ended the drain early.
func (e *SyncEngine) SyncPendingEntries(ctx context.Context) (*DrainResult, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return e.skip(SkipInProgress), nil
	}
	if e.online != nil && !e.online.Online() {
		e.syncing.Store(false)
		return e.skip(SkipOffline), nil
	}

	result, err := e.run(ctx)

	e.mu.Lock()
	e.lastResult = result
	e.lastErr = err
	e.mu.Unlock()

	e.emitEvent(SyncEvent{Type: SyncEventCompleted, Result: result})
	return result, err
}

// run performs one drain while holding the guard.
func (e *SyncEngine) run(ctx context.Context) (*DrainResult, error) {
	defer e.syncing.Store(false)

	result := &DrainResult{StartTime: e.now()}
	err := e.drain(ctx, result)

	result.EndTime = e.now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if result.Attempted > 0 || err != nil {
		fields := map[string]interface{}{
			"attempted":      result.Attempted,
			"synced":         result.Synced,
			"failed":         result.Failed,
			"image_failures": result.ImageFailures,
			"duration_ms":    result.Duration.Milliseconds(),
		}
		if err != nil {
			logging.ErrorWithCode("Drain stopped early", apperrors.CodeOf(err), err, fields)
		} else {
			logging.Info("Drain completed", fields)
		}
	}
	return result, err
}

func (e *SyncEngine) skip(reason string) *DrainResult {
	logging.Debug("Drain skipped", map[string]interface{}{"reason": reason})
	result := &DrainResult{Skipped: reason}
	e.emitEvent(SyncEvent{Type: SyncEventSkipped, Result: result})
	return result
}

func (e *SyncEngine) drain(ctx context.Context, result *DrainResult) error {
	entries, err := e.store.ListActionable(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncFailed, "list actionable entries", err)
	}
	if len(entries) == 0 {
		return nil
	}

	e.emitEvent(SyncEvent{Type: SyncEventStarted})
	logging.Info("Drain started", map[string]interface{}{"entries": len(entries)})

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(apperrors.ErrSyncFailed, "drain cancelled", err)
		}

		result.Attempted++
		imageFailures, err := e.syncEntry(ctx, entry)
		result.ImageFailures += imageFailures
		if err != nil {
			result.Failed++
			e.markFailed(ctx, entry, err)
			continue
		}
		result.Synced++
		e.emitEvent(SyncEvent{Type: SyncEventEntrySynced, EntryID: string(entry.ID)})
	}
	return nil
}

// syncEntry pushes one entry to the remote.
// The voice note goes up before the report row so the row never lacks it; images
// follow the row and are best-effort. Remote side effects are never rolled back.
func (e *SyncEngine) syncEntry(ctx context.Context, entry *models.QueuedEntry) (int, error) {
	id := string(entry.ID)

	if err := e.store.UpdateStatus(ctx, id, models.StatusSyncing, ""); err != nil {
		return 0, err
	}

	var voiceURL string
	if entry.HasVoice() {
		key := storage.ObjectKey(id, models.KindVoice, *entry.Voice)
		if _, err := e.remote.UploadBlob(ctx, e.config.VoiceBucket, key, entry.Voice.Data, entry.Voice.ContentType); err != nil {
			return 0, fmt.Errorf("upload voice note: %w", err)
		}
		voiceURL = e.remote.PublicURL(e.config.VoiceBucket, key)
	}

	payload, err := models.RecordPayload(entry, voiceURL)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInvalid, "build report payload", err)
	}
	row, err := e.remote.InsertRecord(ctx, e.config.ReportsTable, payload)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	if !row.Inserted {
		logging.Debug("Report already present remotely", map[string]interface{}{"entry_id": id})
	}

	imageFailures := 0
	for pos, img := range entry.Images {
		if err := e.syncImage(ctx, id, pos, img); err != nil {
			imageFailures++
			logging.Warn("Image upload skipped", map[string]interface{}{
				"entry_id": id,
				"position": pos,
				"error":    err.Error(),
			})
			e.emitEvent(SyncEvent{Type: SyncEventImageFailed, EntryID: id, Position: pos, Error: err.Error()})
		}
	}

	if err := e.store.Remove(ctx, id); err != nil {
		return imageFailures, err
	}
	return imageFailures, nil
}

func (e *SyncEngine) syncImage(ctx context.Context, reportID string, pos int, img models.Attachment) error {
	key := storage.ObjectKey(reportID, models.KindImage, img)
	if _, err := e.remote.UploadBlob(ctx, e.config.ImageBucket, key, img.Data, img.ContentType); err != nil {
		return err
	}

	imageID, err := uuid.Derive(reportID, fmt.Sprintf("image-%d", pos))
	if err != nil {
		return err
	}
	payload := models.ImagePayload(imageID, reportID, e.remote.PublicURL(e.config.ImageBucket, key), pos)
	_, err = e.remote.InsertRecord(ctx, e.config.ImagesTable, payload)
	return err
}

// markFailed records the failure on the entry. The status write ignores ctx
// cancellation so an interrupted attempt is still counted.
func (e *SyncEngine) markFailed(ctx context.Context, entry *models.QueuedEntry, cause error) {
	id := string(entry.ID)
	logging.ErrorWithCode("Entry sync failed", apperrors.CodeOf(cause), cause, map[string]interface{}{
		"entry_id":    id,
		"retry_count": entry.RetryCount + 1,
	})

	if err := e.store.UpdateStatus(context.WithoutCancel(ctx), id, models.StatusError, cause.Error()); err != nil {
		logging.Error("Failed to record entry failure", err, map[string]interface{}{"entry_id": id})
	}
	e.emitEvent(SyncEvent{Type: SyncEventEntryFailed, EntryID: id, Error: cause.Error()})
}
