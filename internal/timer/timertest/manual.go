// Package timertest provides a hand-cranked timer.Scheduler for controller tests.
package timertest

import (
	"time"

	"github.com/gokatarajesh/quiz-session/internal/timer"
)

type kind int

const (
	kindCountdown kind = iota
	kindAfter
	kindEvery
)

type entry struct {
	handle    *timer.Handle
	kind      kind
	remaining int
	interval  time.Duration
	onTick    func(int)
	onExpire  func()
	fn        func()
}

// Manual never fires on its own. Tests drive it with Step and Fire.
// It is not safe for concurrent use.
type Manual struct {
	entries map[timer.Slot]*entry
	starts  map[timer.Slot]int
}

var _ timer.Scheduler = (*Manual)(nil)

func New() *Manual {
	return &Manual{
		entries: make(map[timer.Slot]*entry),
		starts:  make(map[timer.Slot]int),
	}
}

func (m *Manual) install(slot timer.Slot, e *entry) *timer.Handle {
	if prev, ok := m.entries[slot]; ok {
		prev.handle.Stop()
	}
	e.handle = timer.NewHandle(slot)
	m.entries[slot] = e
	m.starts[slot]++
	return e.handle
}

func (m *Manual) Countdown(slot timer.Slot, seconds int, onTick func(int), onExpire func()) *timer.Handle {
	return m.install(slot, &entry{kind: kindCountdown, remaining: seconds, onTick: onTick, onExpire: onExpire})
}

func (m *Manual) After(slot timer.Slot, d time.Duration, fn func()) *timer.Handle {
	return m.install(slot, &entry{kind: kindAfter, interval: d, fn: fn})
}

func (m *Manual) Every(slot timer.Slot, d time.Duration, fn func()) *timer.Handle {
	return m.install(slot, &entry{kind: kindEvery, interval: d, fn: fn})
}

func (m *Manual) Cancel(h *timer.Handle) {
	if h == nil {
		return
	}
	h.Stop()
	if e, ok := m.entries[h.Slot()]; ok && e.handle == h {
		delete(m.entries, h.Slot())
	}
}

func (m *Manual) CancelSlot(slot timer.Slot) {
	if e, ok := m.entries[slot]; ok {
		e.handle.Stop()
		delete(m.entries, slot)
	}
}

func (m *Manual) Active(slot timer.Slot) bool {
	e, ok := m.entries[slot]
	return ok && e.handle.Live()
}

func (m *Manual) CancelAll() {
	for slot, e := range m.entries {
		e.handle.Stop()
		delete(m.entries, slot)
	}
}

// Starts reports how many times slot has been scheduled.
func (m *Manual) Starts(slot timer.Slot) int {
	return m.starts[slot]
}

// Remaining reports the next value a countdown in slot will tick with.
func (m *Manual) Remaining(slot timer.Slot) int {
	if e, ok := m.entries[slot]; ok {
		return e.remaining
	}
	return 0
}

// Interval reports the period of an Every or the delay of an After.
func (m *Manual) Interval(slot timer.Slot) time.Duration {
	if e, ok := m.entries[slot]; ok {
		return e.interval
	}
	return 0
}

// Step performs one countdown fire in slot. It reports false if no countdown is live there.
func (m *Manual) Step(slot timer.Slot) bool {
	e, ok := m.entries[slot]
	if !ok || e.kind != kindCountdown || !e.handle.Live() {
		return false
	}
	if e.remaining <= 0 {
		e.handle.Stop()
		delete(m.entries, slot)
		if e.onExpire != nil {
			e.onExpire()
		}
		return true
	}
	if e.onTick != nil {
		e.onTick(e.remaining)
	}
	e.remaining--
	return true
}

// Expire steps the countdown in slot until it expires or is cancelled.
func (m *Manual) Expire(slot timer.Slot) {
	e, ok := m.entries[slot]
	if !ok {
		return
	}
	for e.handle.Live() && m.entries[slot] == e {
		m.Step(slot)
	}
}

// Fire runs an After or Every callback in slot. After handles are consumed.
func (m *Manual) Fire(slot timer.Slot) bool {
	e, ok := m.entries[slot]
	if !ok || e.kind == kindCountdown || !e.handle.Live() {
		return false
	}
	if e.kind == kindAfter {
		e.handle.Stop()
		delete(m.entries, slot)
	}
	e.fn()
	return true
}
