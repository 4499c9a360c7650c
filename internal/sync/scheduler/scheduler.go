// Package scheduler runs sync drains in the background: on reconnect, on request
// and on a coarse safety-net poll.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
	syncpkg "github.com/kimhsiao/damagelog/backend/internal/sync"
)

// PendingCounter counts entries the next drain would pick up.
type PendingCounter interface {
	CountActionable(ctx context.Context) (int, error)
}

// Connectivity is the reachability source the scheduler reacts to.
type Connectivity interface {
	Online() bool
	Subscribe(fn func()) (unsubscribe func())
}

// Refresher is refreshed on every poll tick.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler manages background sync operations.
type Scheduler struct {
	engine       syncpkg.SyncEngineInterface
	counter      PendingCounter
	connectivity Connectivity
	pollInterval time.Duration
	syncTimeout  time.Duration

	baseCtx     context.Context
	cancel      context.CancelFunc
	stopCh      chan struct{}
	unsubscribe func()
	wg          sync.WaitGroup // loops
	drains      sync.WaitGroup // background drains

	mu             sync.RWMutex
	refresher      Refresher
	isRunning      bool
	lastSyncTime   time.Time
	syncInProgress bool
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	PollInterval time.Duration // Safety-net poll (default: 30 seconds)
	SyncTimeout  time.Duration // Upper bound for one drain (default: 5 minutes)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval: 30 * time.Second,
		SyncTimeout:  5 * time.Minute,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(engine syncpkg.SyncEngineInterface, counter PendingCounter, connectivity Connectivity, config *SchedulerConfig) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config == nil {
		config = defaults
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = defaults.SyncTimeout
	}

	return &Scheduler{
		engine:       engine,
		counter:      counter,
		connectivity: connectivity,
		pollInterval: config.PollInterval,
		syncTimeout:  config.SyncTimeout,
		baseCtx:      context.Background(),
	}
}

// SetRefresher registers the component refreshed on every poll tick.
func (s *Scheduler) SetRefresher(r Refresher) {
	s.mu.Lock()
	s.refresher = r
	s.mu.Unlock()
}

// Start subscribes to reconnect events and starts the poll loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if s.connectivity != nil {
		s.unsubscribe = s.connectivity.Subscribe(func() {
			logging.Info("Back online, triggering sync", nil)
			s.TriggerSync()
		})
	}

	s.wg.Add(1)
	go s.pollLoop(s.baseCtx, stopCh)

	logging.Info("Background sync scheduler started",
		map[string]interface{}{"poll_interval_sec": s.pollInterval.Seconds()})
}

// Stop stops the scheduler and waits for the loop and any running drain.
// Drains triggered without Start are waited for as well.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	running := s.isRunning
	s.isRunning = false
	stopCh := s.stopCh
	s.mu.Unlock()

	if running {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(stopCh)
		s.wg.Wait()
	}
	s.drains.Wait()

	if running {
		s.cancel()
		logging.Info("Background sync scheduler stopped", nil)
	}
}

// pollLoop refreshes observers and picks up work a missed event left behind.
func (s *Scheduler) pollLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	s.mu.RLock()
	r := s.refresher
	s.mu.RUnlock()
	if r != nil {
		if err := r.Refresh(ctx); err != nil {
			logging.Warn("Status refresh failed", map[string]interface{}{"error": err.Error()})
		}
	}

	if s.connectivity != nil && !s.connectivity.Online() {
		return
	}
	pending, err := s.counter.CountActionable(ctx)
	if err != nil {
		logging.Error("Failed to count pending entries", err, nil)
		return
	}
	if pending > 0 {
		logging.Debug("Poll found pending entries", map[string]interface{}{"pending": pending})
		s.TriggerSync()
	}
}

// TriggerSync starts a drain in the background.
// Returns true if a drain was started, false if one is already in progress.
func (s *Scheduler) TriggerSync() bool {
	s.mu.Lock()
	if s.syncInProgress || s.engine.IsSyncing() {
		s.mu.Unlock()
		return false
	}
	s.syncInProgress = true
	ctx := s.baseCtx
	s.drains.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.drains.Done()
		s.runSync(ctx)
	}()
	return true
}

// runSync executes one drain.
func (s *Scheduler) runSync(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.syncInProgress = false
		s.mu.Unlock()
	}()

	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result, err := s.engine.SyncPendingEntries(syncCtx)
	if err != nil {
		logging.ErrorWithCode("Background sync failed", errors.ErrSyncFailed, err, nil)
		return
	}
	if result.Ran() {
		s.mu.Lock()
		s.lastSyncTime = time.Now()
		s.mu.Unlock()
	}
}

// SyncNow runs a drain and waits for it.
// The result is skipped when another drain is running or the device is offline.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.DrainResult, error) {
	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result, err := s.engine.SyncPendingEntries(syncCtx)
	if err != nil {
		return result, err
	}
	if result.Ran() {
		s.mu.Lock()
		s.lastSyncTime = time.Now()
		s.mu.Unlock()

		logging.Info("Manual sync completed",
			map[string]interface{}{
				"synced": result.Synced,
				"failed": result.Failed,
			})
	}
	return result, nil
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	IsRunning      bool       `json:"is_running"`
	IsOnline       bool       `json:"is_online"`
	LastSyncTime   *time.Time `json:"last_sync_time,omitempty"`
	SyncInProgress bool       `json:"sync_in_progress"`
	PendingItems   int        `json:"pending_items"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus(ctx context.Context) (SchedulerStatus, error) {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:      s.isRunning,
		SyncInProgress: s.syncInProgress || s.engine.IsSyncing(),
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	s.mu.RUnlock()

	status.IsOnline = s.connectivity == nil || s.connectivity.Online()

	pending, err := s.counter.CountActionable(ctx)
	if err != nil {
		return status, err
	}
	status.PendingItems = pending
	return status, nil
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
