package clock

import (
	"sync"
	"time"
)

// Manual is a hand-advanced Clock for deterministic tests. Timers created by
// After fire when Advance moves the clock past their deadline.
type Manual struct {
	mu      sync.Mutex
	current time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewManual returns a Manual clock frozen at start.
func NewManual(start time.Time) *Manual {
	return &Manual{current: start.UTC()}
}

// Now returns the frozen time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// After returns a channel that receives once the clock has been advanced by
// at least d. A non-positive d fires immediately.
func (m *Manual) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if d <= 0 {
		ch <- m.current
		return ch
	}
	m.waiters = append(m.waiters, waiter{deadline: m.current.Add(d), ch: ch})
	return ch
}

// Sleep blocks until the clock advances by at least d.
func (m *Manual) Sleep(d time.Duration) {
	<-m.After(d)
}

// Advance moves the clock forward by d, delivering to every waiter whose
// deadline has been reached, and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
	kept := m.waiters[:0]
	for _, w := range m.waiters {
		if w.deadline.After(m.current) {
			kept = append(kept, w)
			continue
		}
		w.ch <- m.current
	}
	m.waiters = kept
	return m.current
}

// Pending reports how many timers are still waiting for a deadline.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
