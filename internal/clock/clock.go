// Package clock provides the monotonic time source and timer wheel that
// drive watchdog timeouts and rate pacing for the reactor.
//
// It mirrors httperf's timer.c: a cheap cached "now" refreshed once per
// reactor iteration, plus a pool of Timer objects recycled through a free
// list so scheduling under load does not allocate.
package clock

import (
	"errors"
	"time"
)

// ErrCancelCurrent is returned by Cancel when called from inside the
// callback of the timer being cancelled. httperf's timer_cancel forbids
// this silently (it just sets has_expired, which is a no-op on a timer
// already mid-fire); this port reports it instead of swallowing it.
var ErrCancelCurrent = errors.New("clock: cannot cancel the timer currently firing")

// Callback receives the timer and the subject it was scheduled for.
type Callback func(t *Timer, subject any)

// Timer is a single scheduled callback. The zero value is not usable;
// obtain one via Clock.Schedule.
type Timer struct {
	deadline time.Time
	fn       Callback
	subject  any
	active   bool
	firing   bool
	seq      uint64 // insertion order, for stable ordering of equal deadlines
	next     *Timer // intrusive free-list / active-list link
}

// Handle is an opaque reference returned by Schedule. A nil Handle means
// "no watchdog" per the §4.1 failure mode (schedule returns null on
// allocation failure; pool exhaustion never actually happens here since
// the pool grows on demand, but the nil-handle contract is preserved for
// callers that must treat "no timer" as a valid outcome).
type Handle = *Timer

// Clock is the wheel: it owns the active-timer list and a free list of
// retired Timer objects, reused by Schedule to avoid per-call allocation
// the way httperf's timer_schedule recycles from its passive_timers list.
type Clock struct {
	cached   time.Time
	forcedFn func() time.Time // overridable for tests

	active *Timer // singly linked list of scheduled, not-yet-fired timers
	free   *Timer // free list of retired Timer structs

	firing *Timer // the timer whose callback is currently executing, if any
	seq    uint64
}

// New creates a Clock with its cache primed from the OS clock.
func New() *Clock {
	c := &Clock{forcedFn: time.Now}
	c.cached = c.forcedFn()
	return c
}

// Now returns the cached time — cheap, no syscall. Accurate as of the last
// Tick.
func (c *Clock) Now() time.Time {
	return c.cached
}

// NowForced calls the OS clock unconditionally, bypassing the cache.
func (c *Clock) NowForced() time.Time {
	return c.forcedFn()
}

// SetNowFunc overrides the clock's underlying time source. Intended for
// tests that need to advance time deterministically without sleeping.
func (c *Clock) SetNowFunc(fn func() time.Time) {
	c.forcedFn = fn
}

// Tick refreshes the cached time and fires every timer whose deadline has
// passed. It must be invoked at least once per reactor iteration (see
// §4.5: the reactor calls Tick before blocking on the readiness
// primitive).
func (c *Clock) Tick() {
	c.cached = c.forcedFn()

	// Two passes: first collect what fires (deadlines <= now), in
	// insertion order, then run callbacks. httperf's timer_tick walks the
	// active list once calling the callback inline and marking
	// has_expired, then a second pass moves expired timers to the
	// passive list; we match that two-phase shape so a callback that
	// schedules a new timer with delay 0 does not fire within the same
	// Tick (insertion order is preserved, not re-scanned).
	var firstExpired, prevExpired *Timer
	prev := (*Timer)(nil)
	t := c.active
	for t != nil {
		nextT := t.next
		if !t.deadline.After(c.cached) {
			// unlink from active list
			if prev == nil {
				c.active = nextT
			} else {
				prev.next = nextT
			}
			t.next = nil
			if firstExpired == nil {
				firstExpired = t
			} else {
				prevExpired.next = t
			}
			prevExpired = t
		} else {
			prev = t
		}
		t = nextT
	}

	for t := firstExpired; t != nil; {
		next := t.next
		t.active = false
		t.firing = true
		c.firing = t
		t.fn(t, t.subject)
		c.firing = nil
		t.firing = false
		c.retire(t)
		t = next
	}
}

// Schedule arms a callback to fire no earlier than delay after now, with
// ~1ms granularity. Timers scheduled with identical delay fire in
// insertion order (the active list is kept in deadline order with stable
// insertion for ties). The returned Handle is never nil: allocation does
// not fail here (Go's GC backs it), and a negative delay simply yields a
// deadline already in the past, which fires on the next Tick.
func (c *Clock) Schedule(fn Callback, subject any, delay time.Duration) Handle {
	t := c.acquire()
	t.fn = fn
	t.subject = subject
	t.deadline = c.cached.Add(delay)
	t.active = true
	t.firing = false
	c.seq++
	t.seq = c.seq

	c.insertSorted(t)
	return t
}

// Cancel removes a pending timer. Cancelling an already-fired timer is a
// no-op. Cancelling the timer whose callback is currently executing is
// forbidden and reported via ErrCancelCurrent rather than silently
// ignored (a deliberate divergence from the original's silent
// has_expired=true, per the ambient-stack error-handling rule: no library
// call here swallows a programmer error).
func (c *Clock) Cancel(t *Timer) error {
	if t == nil {
		return nil
	}
	if t.firing {
		return ErrCancelCurrent
	}
	if !t.active {
		return nil // already fired
	}
	c.unlink(t)
	t.active = false
	c.retire(t)
	return nil
}

func (c *Clock) acquire() *Timer {
	if c.free != nil {
		t := c.free
		c.free = t.next
		t.next = nil
		return t
	}
	return &Timer{}
}

func (c *Clock) retire(t *Timer) {
	t.fn = nil
	t.subject = nil
	t.next = c.free
	c.free = t
}

func (c *Clock) unlink(t *Timer) {
	if c.active == t {
		c.active = t.next
		t.next = nil
		return
	}
	for p := c.active; p != nil; p = p.next {
		if p.next == t {
			p.next = t.next
			t.next = nil
			return
		}
	}
}

// insertSorted keeps the active list ordered by (deadline, seq) ascending
// so Tick's linear scan finds the earliest-due timers first and ties
// resolve in scheduling order.
func (c *Clock) insertSorted(t *Timer) {
	if c.active == nil || t.deadline.Before(c.active.deadline) {
		t.next = c.active
		c.active = t
		return
	}
	p := c.active
	for p.next != nil && !t.deadline.Before(p.next.deadline) {
		p = p.next
	}
	t.next = p.next
	p.next = t
}

// Deadline reports the earliest active timer's deadline, used by the
// reactor to bound its multiplexer wait. The bool is false when no timer
// is pending.
func (c *Clock) Deadline() (time.Time, bool) {
	if c.active == nil {
		return time.Time{}, false
	}
	return c.active.deadline, true
}
