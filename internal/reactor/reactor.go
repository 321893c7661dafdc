package reactor

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/syscalltime"
)

// Callback is invoked once per ready descriptor per iteration. ev.Err is
// set alongside Readable/Writable when the poller observed a hangup or
// error condition; the connection engine is expected to treat that as a
// close regardless of which directions were ready.
type Callback func(fd int, ev Event)

// watched tracks what the reactor itself knows about a registered fd,
// independent of what the OS poller currently has armed.
type watched struct {
	interest Interest
	cb       Callback
}

// Reactor is the single-threaded event loop described in spec.md §4.5: each
// iteration blocks on the poller for at most as long as until the next timer
// deadline, then fires due timers, then dispatches ready descriptors in the
// order the poller reported them. Grounded on the teacher's core.Engine
// connection loop, generalized from one fixed HTTP server socket set to an
// arbitrary, dynamically changing set of outbound connections.
type Reactor struct {
	poller Poller
	clock  *clock.Clock
	log    *logrus.Logger
	fds    map[int]*watched

	// Drain, if set, is called once at the start of every RunOnce, before
	// the poller wait — the hook internal/workerpool's CompletionQueue is
	// wired through so a DNS resolution finished off-thread reaches its
	// waiting connection on the reactor thread before this iteration blocks
	// again
	// (SPEC_FULL.md §5 EXPANSION).
	Drain func()

	// Syscalls records time spent blocked in the poller wait itself
	// (the original's SYSCALL(select/kevent/epoll_wait, ...) site) when
	// non-nil and enabled; see internal/syscalltime.
	Syscalls *syscalltime.Recorder

	wakeR, wakeW int // self-pipe: Wake() writes wakeR/W so Wait() returns promptly for an off-thread event
}

// New builds a Reactor over poller, driven by clk for timer deadlines. A
// self-pipe is registered with poller so Wake can interrupt an indefinite
// poller.Wait from another goroutine (SPEC_FULL.md §5 EXPANSION: the
// completion queue needs a way to unblock a reactor that would otherwise
// wait forever with no socket or timer registered yet).
func New(poller Poller, clk *clock.Clock, log *logrus.Logger) *Reactor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Reactor{poller: poller, clock: clk, log: log, fds: make(map[int]*watched), wakeR: -1, wakeW: -1}

	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err == nil {
		r.wakeR, r.wakeW = fds[0], fds[1]
		// Registered directly with the poller, not via Watch/r.fds: the
		// wake pipe is an implementation detail of Reactor itself, not a
		// descriptor the connection engine owns, so it must not show up
		// in Watching() or be dispatchable to outside callbacks.
		_ = r.poller.Add(r.wakeR, Read)
	}
	return r
}

func (r *Reactor) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Wake interrupts a blocked Wait, used by collaborators (the DNS
// resolver's completion queue) that deliver results from another
// goroutine and need the reactor to notice promptly instead of waiting
// out the remainder of its current timeout.
func (r *Reactor) Wake() {
	if r.wakeW < 0 {
		return
	}
	var b [1]byte
	for {
		_, err := unix.Write(r.wakeW, b[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// Watch begins dispatching readiness events for fd to cb.
func (r *Reactor) Watch(fd int, interest Interest, cb Callback) error {
	if err := r.poller.Add(fd, interest); err != nil {
		return fmt.Errorf("reactor: watch fd %d: %w", fd, err)
	}
	r.fds[fd] = &watched{interest: interest, cb: cb}
	return nil
}

// Rewatch changes fd's registered interest, e.g. dropping Write once a
// deferred send drains or arming it when a write would otherwise block.
func (r *Reactor) Rewatch(fd int, interest Interest) error {
	w, ok := r.fds[fd]
	if !ok {
		return fmt.Errorf("reactor: rewatch unknown fd %d", fd)
	}
	if err := r.poller.Modify(fd, interest); err != nil {
		return fmt.Errorf("reactor: rewatch fd %d: %w", fd, err)
	}
	w.interest = interest
	return nil
}

// Unwatch stops dispatching for fd. Callers must call this before closing
// the underlying descriptor (spec.md §4.5: clean socket removal before fd
// close).
func (r *Reactor) Unwatch(fd int) error {
	if _, ok := r.fds[fd]; !ok {
		return nil
	}
	delete(r.fds, fd)
	if err := r.poller.Remove(fd); err != nil {
		return fmt.Errorf("reactor: unwatch fd %d: %w", fd, err)
	}
	return nil
}

// Watching reports how many descriptors are currently registered.
func (r *Reactor) Watching() int { return len(r.fds) }

// RunOnce executes a single iteration: wait for readiness bounded by the
// earliest timer deadline, fire due timers, then dispatch readiness
// callbacks in poller-reported order. It returns the number of descriptors
// dispatched.
func (r *Reactor) RunOnce() (int, error) {
	if r.Drain != nil {
		r.Drain()
	}

	timeout := time.Duration(-1)
	if deadline, ok := r.clock.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout < 0 {
			timeout = 0
		}
	}

	var events []Event
	err := r.Syscalls.Track(syscalltime.Poll, func() error {
		var perr error
		events, perr = r.poller.Wait(timeout)
		return perr
	})
	if err != nil {
		return 0, fmt.Errorf("reactor: poll: %w", err)
	}

	r.clock.Tick()

	dispatched := 0
	for _, ev := range events {
		if ev.Fd == r.wakeR {
			r.drainWake()
			continue
		}
		w, ok := r.fds[ev.Fd]
		if !ok {
			// fd was unwatched between Wait returning and dispatch
			// (e.g. a prior callback in this same batch closed it).
			continue
		}
		w.cb(ev.Fd, ev)
		dispatched++
	}
	return dispatched, nil
}

// Close releases the poller and the wakeup pipe. Watched sockets are the
// caller's responsibility to close separately.
func (r *Reactor) Close() error {
	if r.wakeR >= 0 {
		_ = r.poller.Remove(r.wakeR)
		_ = unix.Close(r.wakeR)
		_ = unix.Close(r.wakeW)
		r.wakeR, r.wakeW = -1, -1
	}
	return r.poller.Close()
}

// Run drives RunOnce until stop is closed or an iteration returns an error.
func (r *Reactor) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if _, err := r.RunOnce(); err != nil {
			r.log.WithError(err).Error("reactor iteration failed")
			return err
		}
	}
}
