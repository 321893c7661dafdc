package reactor

import (
	"testing"
	"time"

	"github.com/searchktools/httperfgo/internal/clock"
)

// fakePoller is a scripted Poller used to test Reactor's dispatch and
// timer-interaction contract without touching real descriptors.
type fakePoller struct {
	waitQueue   [][]Event
	waitTimeout []time.Duration
	interests   map[int]Interest
}

func newFakePoller() *fakePoller {
	return &fakePoller{interests: make(map[int]Interest)}
}

func (p *fakePoller) Add(fd int, interest Interest) error {
	p.interests[fd] = interest
	return nil
}

func (p *fakePoller) Modify(fd int, interest Interest) error {
	p.interests[fd] = interest
	return nil
}

func (p *fakePoller) Remove(fd int) error {
	delete(p.interests, fd)
	return nil
}

func (p *fakePoller) Wait(timeout time.Duration) ([]Event, error) {
	p.waitTimeout = append(p.waitTimeout, timeout)
	if len(p.waitQueue) == 0 {
		return nil, nil
	}
	next := p.waitQueue[0]
	p.waitQueue = p.waitQueue[1:]
	return next, nil
}

func (p *fakePoller) Close() error { return nil }

func TestRunOnceDispatchesRegisteredCallbacks(t *testing.T) {
	fp := newFakePoller()
	fp.waitQueue = [][]Event{{{Fd: 3, Readable: true}}}
	r := New(fp, clock.New(), nil)

	var got Event
	if err := r.Watch(3, Read, func(fd int, ev Event) { got = ev }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := r.RunOnce()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 dispatch, got %d", n)
	}
	if got.Fd != 3 || !got.Readable {
		t.Fatalf("unexpected event delivered: %+v", got)
	}
}

func TestRunOnceBlocksUntilEarliestTimerDeadline(t *testing.T) {
	fp := newFakePoller()
	fp.waitQueue = [][]Event{nil}
	clk := clock.New()
	r := New(fp, clk, nil)

	clk.Schedule(func(*clock.Timer, any) {}, nil, 5*time.Second)

	if _, err := r.RunOnce(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp.waitTimeout) != 1 {
		t.Fatalf("expected exactly one Wait call")
	}
	got := fp.waitTimeout[0]
	if got <= 0 || got > 5*time.Second {
		t.Fatalf("expected a bounded positive timeout near 5s, got %v", got)
	}
}

func TestRunOnceFiresTimersAfterWaitReturns(t *testing.T) {
	fp := newFakePoller()
	fp.waitQueue = [][]Event{nil}
	clk := clock.New()
	fired := time.Time{}
	clk.SetNowFunc(func() time.Time { return time.Now().Add(time.Hour) })
	clk.Schedule(func(*clock.Timer, any) { fired = clk.NowForced() }, nil, time.Millisecond)

	r := New(fp, clk, nil)
	if _, err := r.RunOnce(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fired.IsZero() {
		t.Fatalf("expected the due timer to fire during RunOnce")
	}
}

func TestUnwatchStopsDispatch(t *testing.T) {
	fp := newFakePoller()
	fp.waitQueue = [][]Event{{{Fd: 4, Readable: true}}}
	r := New(fp, clock.New(), nil)

	called := false
	_ = r.Watch(4, Read, func(int, Event) { called = true })
	if err := r.Unwatch(4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := r.RunOnce(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected no dispatch after Unwatch")
	}
	if r.Watching() != 0 {
		t.Fatalf("expected 0 watched descriptors, got %d", r.Watching())
	}
}

func TestRewatchUnknownFdErrors(t *testing.T) {
	fp := newFakePoller()
	r := New(fp, clock.New(), nil)
	if err := r.Rewatch(99, Write); err == nil {
		t.Fatalf("expected an error rewatching an unregistered fd")
	}
}
