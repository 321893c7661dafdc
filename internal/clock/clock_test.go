package clock

import (
	"testing"
	"time"
)

func TestScheduleFiresAfterDelay(t *testing.T) {
	c := New()
	base := c.Now()
	fired := false
	c.Schedule(func(_ *Timer, _ any) { fired = true }, nil, 10*time.Millisecond)

	c.forcedFn = func() time.Time { return base.Add(5 * time.Millisecond) }
	c.Tick()
	if fired {
		t.Fatalf("timer fired early")
	}

	c.forcedFn = func() time.Time { return base.Add(11 * time.Millisecond) }
	c.Tick()
	if !fired {
		t.Fatalf("timer did not fire by its deadline")
	}
}

func TestEqualDelayFiresInInsertionOrder(t *testing.T) {
	c := New()
	base := c.Now()
	var order []int
	c.Schedule(func(_ *Timer, s any) { order = append(order, s.(int)) }, 1, 10*time.Millisecond)
	c.Schedule(func(_ *Timer, s any) { order = append(order, s.(int)) }, 2, 10*time.Millisecond)
	c.Schedule(func(_ *Timer, s any) { order = append(order, s.(int)) }, 3, 10*time.Millisecond)

	c.forcedFn = func() time.Time { return base.Add(20 * time.Millisecond) }
	c.Tick()

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected insertion order [1 2 3], got %v", order)
	}
}

func TestCancelPendingIsNoopAfterFire(t *testing.T) {
	c := New()
	base := c.Now()
	h := c.Schedule(func(_ *Timer, _ any) {}, nil, time.Millisecond)
	c.forcedFn = func() time.Time { return base.Add(2 * time.Millisecond) }
	c.Tick()

	if err := c.Cancel(h); err != nil {
		t.Fatalf("cancel of an already-fired timer should be a no-op, got %v", err)
	}
}

func TestCancelCurrentTimerIsForbidden(t *testing.T) {
	c := New()
	base := c.Now()
	var selfErr error
	var h Handle
	h = c.Schedule(func(tm *Timer, _ any) { selfErr = c.Cancel(tm) }, nil, time.Millisecond)
	_ = h

	c.forcedFn = func() time.Time { return base.Add(2 * time.Millisecond) }
	c.Tick()

	if selfErr != ErrCancelCurrent {
		t.Fatalf("expected ErrCancelCurrent, got %v", selfErr)
	}
}

func TestCancelFromDifferentCallbackIsPermitted(t *testing.T) {
	c := New()
	base := c.Now()
	var victimFired bool
	victim := c.Schedule(func(_ *Timer, _ any) { victimFired = true }, nil, 50*time.Millisecond)
	c.Schedule(func(_ *Timer, _ any) {
		if err := c.Cancel(victim); err != nil {
			t.Errorf("cancel from a different callback should succeed: %v", err)
		}
	}, nil, time.Millisecond)

	c.forcedFn = func() time.Time { return base.Add(2 * time.Millisecond) }
	c.Tick()

	c.forcedFn = func() time.Time { return base.Add(60 * time.Millisecond) }
	c.Tick()

	if victimFired {
		t.Fatalf("cancelled timer fired anyway")
	}
}

func TestDeadlineReflectsEarliestTimer(t *testing.T) {
	c := New()
	if _, ok := c.Deadline(); ok {
		t.Fatalf("expected no deadline on an empty wheel")
	}
	c.Schedule(func(_ *Timer, _ any) {}, nil, 20*time.Millisecond)
	c.Schedule(func(_ *Timer, _ any) {}, nil, 5*time.Millisecond)

	d, ok := c.Deadline()
	if !ok {
		t.Fatalf("expected a deadline")
	}
	if got := d.Sub(c.Now()); got > 6*time.Millisecond {
		t.Fatalf("expected the 5ms timer to be earliest, got %v", got)
	}
}
