package connectivity

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorInitialState(t *testing.T) {
	assert.True(t, NewMonitor(true).Online())
	assert.False(t, NewMonitor(false).Online())
}

func TestMonitorNotifiesOncePerReconnect(t *testing.T) {
	m := NewMonitor(false)
	var calls int32
	m.Subscribe(func() { atomic.AddInt32(&calls, 1) })

	m.Report(true)
	m.Report(true) // no edge
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	m.Report(false)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "going offline must not notify")

	assert.Equal(t, Transitions{Online: 1, Offline: 1}, m.Transitions())
}

func TestMonitorDoesNotDebounceFlapping(t *testing.T) {
	m := NewMonitor(true)
	var calls int32
	m.Subscribe(func() { atomic.AddInt32(&calls, 1) })

	for i := 0; i < 5; i++ {
		m.Report(false)
		m.Report(true)
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestMonitorEachSubscriberNotified(t *testing.T) {
	m := NewMonitor(false)
	var a, b int32
	m.Subscribe(func() { atomic.AddInt32(&a, 1) })
	unsubscribe := m.Subscribe(func() { atomic.AddInt32(&b, 1) })

	m.Report(true)
	unsubscribe()
	unsubscribe()
	m.Report(false)
	m.Report(true)

	assert.Equal(t, int32(2), atomic.LoadInt32(&a))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b))
}

func TestMonitorListenerMaySubscribe(t *testing.T) {
	m := NewMonitor(false)
	m.Subscribe(func() {
		m.Subscribe(func() {})
		_ = m.Online()
	})
	done := make(chan struct{})
	go func() {
		m.Report(true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Report deadlocked when a listener re-entered the monitor")
	}
}

type flakyPinger struct {
	mu  gosync.Mutex
	err error
}

func (p *flakyPinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *flakyPinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func TestProbeSource(t *testing.T) {
	p := &flakyPinger{err: errors.New("unreachable")}
	src := NewProbeSource(p, 10*time.Millisecond, time.Millisecond)
	assert.False(t, src.Probe(context.Background()))
	p.set(nil)
	assert.True(t, src.Probe(context.Background()))
}

func TestAttachFeedsMonitor(t *testing.T) {
	p := &flakyPinger{err: errors.New("unreachable")}
	m := NewMonitor(true)
	reconnected := make(chan struct{}, 1)
	m.Subscribe(func() {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})

	stop := Attach(context.Background(), m, NewProbeSource(p, 5*time.Millisecond, time.Millisecond))
	defer stop()

	require.Eventually(t, func() bool { return !m.Online() }, time.Second, 5*time.Millisecond)
	p.set(nil)

	select {
	case <-reconnected:
	case <-time.After(time.Second):
		t.Fatal("probe recovery did not notify subscribers")
	}
	assert.True(t, m.Online())
}
