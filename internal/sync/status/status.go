// Package status exposes queue depth and drain state to the UI layer.
package status

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/kimhsiao/damagelog/backend/internal/logging"
	"github.com/kimhsiao/damagelog/backend/internal/models"
	syncpkg "github.com/kimhsiao/damagelog/backend/internal/sync"
)

// StatsSource reports queue counts.
type StatsSource interface {
	CountActionable(ctx context.Context) (int, error)
	Stats(ctx context.Context) (models.QueueStats, error)
}

// Engine is the part of the sync engine the observer reads.
type Engine interface {
	IsSyncing() bool
	AddEventHandler(handler syncpkg.SyncEventHandler)
}

// Trigger starts a drain in the background.
type Trigger interface {
	TriggerSync() bool
}

// Snapshot is the status shown to the user.
type Snapshot struct {
	Pending   int                  `json:"pending"`
	Errored   int                  `json:"errored"`
	Syncing   bool                 `json:"syncing"`
	Online    bool                 `json:"online"`
	LastDrain *syncpkg.DrainResult `json:"last_drain,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Observer caches a Snapshot and notifies subscribers when it changes.
type Observer struct {
	stats   StatsSource
	engine  Engine
	trigger Trigger
	online  syncpkg.OnlineChecker

	mu        sync.RWMutex
	snapshot  Snapshot
	nextID    int
	listeners map[int]func(Snapshot)
}

// NewObserver creates an Observer and subscribes it to drain completions.
func NewObserver(stats StatsSource, engine Engine, trigger Trigger, online syncpkg.OnlineChecker) *Observer {
	o := &Observer{
		stats:     stats,
		engine:    engine,
		trigger:   trigger,
		online:    online,
		listeners: make(map[int]func(Snapshot)),
	}
	engine.AddEventHandler(syncpkg.SyncEventHandlerFunc(o.onSyncEvent))
	return o
}

// PendingCount returns the number of pending and errored entries.
// It always queries the store.
func (o *Observer) PendingCount(ctx context.Context) (int, error) {
	return o.stats.CountActionable(ctx)
}

// IsSyncing reports whether a drain is in flight.
func (o *Observer) IsSyncing() bool {
	return o.engine.IsSyncing()
}

// TriggerManualSync requests a drain without waiting for it.
func (o *Observer) TriggerManualSync() {
	if !o.trigger.TriggerSync() {
		logging.Debug("Manual sync ignored, drain already running", nil)
	}
}

// Snapshot returns the cached snapshot.
func (o *Observer) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot
}

// Subscribe registers fn for snapshot changes.
func (o *Observer) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// Refresh recomputes the snapshot from the store and notifies subscribers
// if anything but the timestamp changed.
func (o *Observer) Refresh(ctx context.Context) error {
	return o.refresh(ctx, nil)
}

func (o *Observer) refresh(ctx context.Context, drain *syncpkg.DrainResult) error {
	stats, err := o.stats.Stats(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	next := o.snapshot
	next.Pending = stats.Actionable()
	next.Errored = stats.Errored
	next.Syncing = o.engine.IsSyncing()
	next.Online = o.online == nil || o.online.Online()
	if drain != nil {
		next.LastDrain = drain
	}

	prev := o.snapshot
	prev.UpdatedAt = time.Time{}
	cmp := next
	cmp.UpdatedAt = time.Time{}
	changed := !reflect.DeepEqual(prev, cmp)

	next.UpdatedAt = time.Now()
	o.snapshot = next

	var notify []func(Snapshot)
	if changed {
		for _, fn := range o.listeners {
			notify = append(notify, fn)
		}
	}
	o.mu.Unlock()

	for _, fn := range notify {
		fn(next)
	}
	return nil
}

func (o *Observer) onSyncEvent(event syncpkg.SyncEvent) {
	if event.Type != syncpkg.SyncEventCompleted {
		return
	}
	if err := o.refresh(context.Background(), event.Result); err != nil {
		logging.Warn("Status refresh after drain failed", map[string]interface{}{"error": err.Error()})
	}
}
