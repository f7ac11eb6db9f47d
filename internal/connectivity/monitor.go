// Package connectivity tracks the device's online/offline state.
//
// The state is fed from the platform's network signal (the driver UI
// relays the browser/OS event through the local HTTP surface). The signal
// is treated as authoritative even though it can be a false positive
// behind captive portals; a failed sync attempt after "online" is a
// normal retryable failure, not a monitor bug. No probing is performed.
package connectivity

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetmove/fieldsync/internal/logging"
)

// Transition is one change of the connectivity state.
type Transition struct {
	Online bool
	At     time.Time
}

// Monitor is the single source of truth for "can we reach the network".
// It never performs syncing itself; subscribers (the scheduler) react to
// transitions.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[chan Transition]struct{}
	log    *logrus.Entry
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online: online,
		subs:   make(map[chan Transition]struct{}),
		log:    logging.WithComponent("connectivity"),
	}
}

// IsOnline returns the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a platform signal. Transitions in either direction are
// published to subscribers; repeated signals for the current state are
// dropped.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online

	t := Transition{Online: online, At: time.Now()}
	m.log.WithField("online", online).Info("connectivity changed")

	for ch := range m.subs {
		// Buffered size 1; keep only the latest transition per subscriber.
		select {
		case ch <- t:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- t
		}
	}
}

// Subscribe registers for transition notifications. The returned func
// unsubscribes; calling it more than once is safe.
func (m *Monitor) Subscribe() (func(), <-chan Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Transition, 1)
	m.subs[ch] = struct{}{}

	unsub := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[ch]; !ok {
			return
		}
		delete(m.subs, ch)
		close(ch)
	}

	return unsub, ch
}

// StopAll drops every subscriber. Used on shutdown.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subs {
		close(ch)
		delete(m.subs, ch)
	}
}
