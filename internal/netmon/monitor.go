// Package netmon holds the single authoritative connectivity state for the
// engine. The monitor is biased toward online: it starts online, ambiguous
// signals are reported as online, and demotion to offline only happens when a
// recognition request actually fails at the transport level. A wrong "online"
// is self-correcting (the next failed request demotes it); a wrong "offline"
// would divert captures into the queue for no reason.
package netmon

import (
	"log"
	"sync"
	"time"
)

const defaultHold = 5 * time.Second

type subscriber struct {
	id int
	fn func(online bool)
}

type Monitor struct {
	mu        sync.Mutex
	online    bool
	hold      time.Duration
	heldUntil time.Time
	subs      []subscriber
	nextID    int
}

// New returns a monitor that starts online. hold is the hysteresis window: an
// offline->online flip reported within hold of a demotion is suppressed, so a
// flapping link does not produce event storms. hold <= 0 uses a default.
func New(hold time.Duration) *Monitor {
	if hold <= 0 {
		hold = defaultHold
	}
	return &Monitor{online: true, hold: hold}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback fired synchronously, in subscription order,
// each time the connectivity state actually flips. The returned function
// unsubscribes.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
	}
}

// SetOnline records an inferred connectivity state. Non-flips are ignored; a
// promotion inside the hold window after a demotion is suppressed.
func (m *Monitor) SetOnline(online bool) {
	m.set(online, false)
}

// ConfirmOnline promotes the monitor on direct proof of connectivity: a
// request that actually reached the service. Proof overrides the hold window;
// only inferred signals are debounced.
func (m *Monitor) ConfirmOnline() {
	m.set(true, true)
}

func (m *Monitor) set(online, confirmed bool) {
	m.mu.Lock()

	if online == m.online {
		m.mu.Unlock()
		return
	}

	if online && !confirmed && time.Now().Before(m.heldUntil) {
		log.Printf("[NETMON] online signal suppressed, still inside hold window")
		m.mu.Unlock()
		return
	}

	m.online = online
	if !online {
		m.heldUntil = time.Now().Add(m.hold)
	}

	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	log.Printf("[NETMON] connectivity changed: online=%v", online)
	for _, s := range subs {
		s.fn(online)
	}
}
