// Package app wires the capture and sync stack together for the binaries.
package app

import (
	"context"
	"os"

	"github.com/kimhsiao/damagelog/backend/internal/capture"
	"github.com/kimhsiao/damagelog/backend/internal/config"
	"github.com/kimhsiao/damagelog/backend/internal/db"
	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
	syncpkg "github.com/kimhsiao/damagelog/backend/internal/sync"
	"github.com/kimhsiao/damagelog/backend/internal/sync/connectivity"
	"github.com/kimhsiao/damagelog/backend/internal/sync/queue"
	"github.com/kimhsiao/damagelog/backend/internal/sync/scheduler"
	"github.com/kimhsiao/damagelog/backend/internal/sync/status"
	"github.com/kimhsiao/damagelog/backend/internal/telemetry"
)

// App holds every long-lived component.
type App struct {
	Config    *config.Config
	DB        *db.DB
	Store     *queue.Store
	Remote    syncpkg.Remote
	Monitor   *connectivity.Monitor
	Engine    *syncpkg.SyncEngine
	Scheduler *scheduler.Scheduler
	Observer  *status.Observer
	Capture   *capture.Service
	Metrics   *telemetry.Recorder // nil unless METRICS_ENABLED

	probe     *connectivity.ProbeSource
	stopProbe func()
	closers   []func()
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	remote syncpkg.Remote
	pinger connectivity.Pinger
}

// WithRemote replaces the configured remote backend.
func WithRemote(r syncpkg.Remote, pinger connectivity.Pinger) Option {
	return func(o *buildOptions) {
		o.remote = r
		o.pinger = pinger
	}
}

// InitLogging configures the global logger from cfg.
func InitLogging(cfg *config.Config) {
	logging.InitWithFormat(os.Stderr, logging.ParseLevel(cfg.LogLevel), logging.LogFormat(cfg.LogFormat))
}

// Build opens the local store and constructs every component. Nothing runs in
// the background until Start.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "open local store", err)
	}
	a := &App{Config: cfg, DB: database}

	if err := db.Migrate(database); err != nil {
		a.Close()
		return nil, err
	}
	a.Store = queue.NewStore(database)

	recovered, err := a.Store.RecoverInterrupted(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if recovered > 0 {
		logging.Warn("Recovered entries interrupted mid-sync", map[string]interface{}{"count": recovered})
	}

	pinger := o.pinger
	if o.remote != nil {
		a.Remote = o.remote
	} else {
		r, p, closers, err := buildRemote(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Remote, pinger = r, p
		a.closers = append(a.closers, closers...)
	}

	a.Monitor = connectivity.NewMonitor(cfg.InitialOnline)
	if cfg.ConnectivityMode == config.ConnectivityProbe {
		if pinger != nil {
			a.probe = connectivity.NewProbeSource(pinger, cfg.ProbeInterval, cfg.ProbeTimeout)
		} else {
			logging.Warn("No remote to probe, connectivity is reported manually", nil)
		}
	}

	a.Engine = syncpkg.NewSyncEngine(a.Store, a.Remote, a.Monitor, syncpkg.EngineConfig{
		ReportsTable: cfg.ReportsTable,
		ImagesTable:  cfg.ImagesTable,
		ImageBucket:  cfg.ImageBucket,
		VoiceBucket:  cfg.VoiceBucket,
	})
	a.Scheduler = scheduler.NewScheduler(a.Engine, a.Store, a.Monitor, &scheduler.SchedulerConfig{
		PollInterval: cfg.StatusPollInterval,
		SyncTimeout:  cfg.SyncTimeout,
	})
	a.Observer = status.NewObserver(a.Store, a.Engine, a.Scheduler, a.Monitor)
	a.Scheduler.SetRefresher(a.Observer)
	a.Capture = capture.NewService(a.Store, a.Monitor, a.Scheduler, capture.ImageOptions{
		MaxDimension: cfg.ImageMaxDimension,
		JPEGQuality:  cfg.ImageJPEGQuality,
	})

	if cfg.MetricsEnabled {
		a.Metrics = telemetry.NewRecorder()
		a.Engine.AddEventHandler(a.Metrics)
		a.Observer.Subscribe(a.Metrics.ObserveSnapshot)
	}

	logging.Info("Engine ready", map[string]interface{}{
		"data_dir":      cfg.DataDir,
		"remote":        cfg.RemoteConfigured(),
		"blob_provider": cfg.BlobProvider,
		"connectivity":  cfg.ConnectivityMode,
	})
	return a, nil
}

// Start runs the scheduler and, in probe mode, the reachability probe.
func (a *App) Start(ctx context.Context) {
	a.Scheduler.Start(ctx)
	if a.probe != nil {
		a.stopProbe = connectivity.Attach(ctx, a.Monitor, a.probe)
	}
	if err := a.Observer.Refresh(ctx); err != nil {
		logging.Warn("Initial status refresh failed", map[string]interface{}{"error": err.Error()})
	}
}

// CheckConnectivity probes the remote once and reports the result, for one-shot
// commands that do not run the background probe. It returns the current state.
func (a *App) CheckConnectivity(ctx context.Context) bool {
	if a.probe != nil {
		a.Monitor.Report(a.probe.Probe(ctx))
	}
	return a.Monitor.Online()
}

// remoteChecker is implemented by remotes that can verify their configuration.
type remoteChecker interface {
	Check(ctx context.Context, buckets ...string) error
}

// CheckRemote verifies the remote database and both buckets. Remotes that
// cannot be checked pass.
func (a *App) CheckRemote(ctx context.Context) error {
	c, ok := a.Remote.(remoteChecker)
	if !ok {
		return nil
	}
	return c.Check(ctx, a.Config.ImageBucket, a.Config.VoiceBucket)
}

// SetOnline forwards a platform reachability event.
func (a *App) SetOnline(online bool) {
	a.Monitor.Report(online)
}

// Close stops background work and releases resources. It is safe to call on a
// partially built App.
func (a *App) Close() {
	if a.stopProbe != nil {
		a.stopProbe()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			logging.Error("Failed to close local store", err, nil)
		}
	}
}
