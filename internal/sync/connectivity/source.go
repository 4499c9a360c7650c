package connectivity

import (
	"context"
	"time"

	"github.com/kimhsiao/damagelog/backend/internal/logging"
)

// Source produces reachability events for a Monitor.
type Source interface {
	Run(ctx context.Context, report func(online bool))
}

// Pinger checks whether the remote backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeSource derives reachability from pinging the remote database.
// It plays the role of the platform signal on hosts without one.
type ProbeSource struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
}

// NewProbeSource creates a ProbeSource.
func NewProbeSource(pinger Pinger, interval, timeout time.Duration) *ProbeSource {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &ProbeSource{pinger: pinger, interval: interval, timeout: timeout}
}

// Probe performs a single reachability check.
func (p *ProbeSource) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pinger.Ping(ctx); err != nil {
		logging.Debug("Remote probe failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

// Run probes immediately and then every interval until ctx is done.
func (p *ProbeSource) Run(ctx context.Context, report func(online bool)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		report(p.Probe(ctx))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Attach runs src in the background, feeding its events into m.
func Attach(ctx context.Context, m *Monitor, src Source) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		src.Run(ctx, func(online bool) {
			if ctx.Err() == nil {
				m.Report(online)
			}
		})
	}()
	return func() {
		cancel()
		<-done
	}
}
