// Package idle logs sessions out after a period without user activity.
package idle

import (
	"fmt"
	"sync"
	"time"
)

// DefaultWindow is the inactivity period after which a session is expired.
const DefaultWindow = 30 * time.Minute

// activityEvents are the browser events that count as user activity.
var activityEvents = map[string]struct{}{
	"pointerdown": {},
	"mousedown":   {},
	"pointermove": {},
	"mousemove":   {},
	"keypress":    {},
	"scroll":      {},
	"touchstart":  {},
	"click":       {},
}

// IsActivityEvent reports whether a UI event of this type resets the idle
// window.
func IsActivityEvent(name string) bool {
	_, ok := activityEvents[name]
	return ok
}

// Notice is the message shown after an idle logout.
func Notice(window time.Duration) string {
	return fmt.Sprintf("You have been automatically logged out due to inactivity (%d minutes).", int(window.Minutes()))
}

// Timer is a running single-shot timer.
type Timer interface {
	Stop() bool
}

// AfterFunc starts a timer that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Option configures a Monitor.
type Option func(*Monitor)

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(f AfterFunc) Option {
	return func(m *Monitor) { m.afterFunc = f }
}

type armed struct {
	gen   uint64
	timer Timer
}

// Monitor keeps one single-shot timer per armed session. A session is either
// armed or disarmed; expiry disarms it and calls onExpire once.
type Monitor struct {
	window    time.Duration
	onExpire  func(id string)
	afterFunc AfterFunc

	mu     sync.Mutex
	timers map[string]armed
	gen    uint64
	closed bool
}

// New creates a monitor. onExpire runs on the timer goroutine without the
// monitor lock held.
func New(window time.Duration, onExpire func(id string), opts ...Option) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	m := &Monitor{
		window:    window,
		onExpire:  onExpire,
		afterFunc: stdAfterFunc,
		timers:    make(map[string]armed),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Window returns the inactivity period.
func (m *Monitor) Window() time.Duration { return m.window }

// Arm starts a full window for id, replacing any running timer.
func (m *Monitor) Arm(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.startLocked(id)
}

// Activity restarts the window for an armed id. It reports whether id was
// armed.
func (m *Monitor) Activity(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if _, ok := m.timers[id]; !ok {
		return false
	}
	m.startLocked(id)
	return true
}

// Disarm cancels the timer for id. It reports whether id was armed.
func (m *Monitor) Disarm(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.timers[id]
	if ok {
		a.timer.Stop()
		delete(m.timers, id)
	}
	return ok
}

// Armed reports whether id has a running timer.
func (m *Monitor) Armed(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[id]
	return ok
}

// Len returns the number of armed sessions.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Close stops every timer. Later calls are no-ops.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.timers {
		a.timer.Stop()
		delete(m.timers, id)
	}
	m.closed = true
}

func (m *Monitor) startLocked(id string) {
	if a, ok := m.timers[id]; ok {
		a.timer.Stop()
	}
	m.gen++
	gen := m.gen
	m.timers[id] = armed{gen: gen, timer: m.afterFunc(m.window, func() { m.fire(id, gen) })}
}

// fire expires id unless its timer was replaced or cancelled after gen was
// issued.
func (m *Monitor) fire(id string, gen uint64) {
	m.mu.Lock()
	a, ok := m.timers[id]
	if !ok || a.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.timers, id)
	m.mu.Unlock()

	if m.onExpire != nil {
		m.onExpire(id)
	}
}
