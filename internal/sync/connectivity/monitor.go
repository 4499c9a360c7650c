// Package connectivity tracks network reachability and notifies listeners when
// the device comes back online.
package connectivity

import (
	gosync "sync"

	"github.com/kimhsiao/damagelog/backend/internal/logging"
)

// Monitor holds the current online/offline state.
// It never polls; state changes arrive through Report.
type Monitor struct {
	mu          gosync.RWMutex
	online      bool
	nextID      int
	listeners   map[int]func()
	transitions Transitions
}

// Transitions counts observed state edges.
type Transitions struct {
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// NewMonitor creates a Monitor with the platform's current reachability.
func NewMonitor(initialOnline bool) *Monitor {
	return &Monitor{
		online:    initialOnline,
		listeners: make(map[int]func()),
	}
}

// Online reports whether the network is currently usable.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Transitions returns the number of edges seen so far.
func (m *Monitor) Transitions() Transitions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transitions
}

// Subscribe registers fn to be called once per offline to online transition.
// The returned function removes the subscription.
func (m *Monitor) Subscribe(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once gosync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Report records a reachability event from the platform.
// Reports that do not change the state are ignored. Every offline to online edge
// notifies each listener exactly once, however quickly edges follow each other.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	var notify []func()
	if online {
		m.transitions.Online++
		notify = make([]func(), 0, len(m.listeners))
		for _, fn := range m.listeners {
			notify = append(notify, fn)
		}
	} else {
		m.transitions.Offline++
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{"online": online})

	for _, fn := range notify {
		fn()
	}
}
