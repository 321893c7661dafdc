//go:build darwin

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller is a kqueue-based Poller, grounded on the teacher's
// core/poller/kqueue.go, rebuilt on golang.org/x/sys/unix with independent
// EVFILT_READ/EVFILT_WRITE registration so a descriptor's read and write
// interest can be toggled separately (the teacher only ever registered
// EVFILT_READ).
type kqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

func newPlatformPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{kqfd: kqfd, events: make([]unix.Kevent_t, 1024)}, nil
}

func (p *kqueuePoller) Add(fd int, interest Interest) error {
	// Always register both filters so Modify can toggle either one later
	// without re-adding; filters not wanted yet are added disabled.
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | enableOrDisable(interest.Has(Read))},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | enableOrDisable(interest.Has(Write))},
	}
	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Modify(fd int, interest Interest) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: enableOrDisable(interest.Has(Read))},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: enableOrDisable(interest.Has(Write))},
	}
	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

func enableOrDisable(on bool) uint16 {
	if on {
		return unix.EV_ENABLE
	}
	return unix.EV_DISABLE
}

func (p *kqueuePoller) Remove(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Wait(timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		spec := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &spec
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	byFd := make(map[int]*Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		raw := p.events[i]
		fd := int(raw.Ident)
		e, ok := byFd[fd]
		if !ok {
			e = &Event{Fd: fd}
			byFd[fd] = e
			order = append(order, fd)
		}
		switch raw.Filter {
		case unix.EVFILT_READ:
			e.Readable = true
		case unix.EVFILT_WRITE:
			e.Writable = true
		}
		if raw.Flags&unix.EV_EOF != 0 {
			e.Err = true
		}
	}

	out := make([]Event, 0, len(order))
	for _, fd := range order {
		out = append(out, *byFd[fd])
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
