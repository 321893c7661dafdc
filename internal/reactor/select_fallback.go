//go:build !linux && !darwin

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// selectPoller is a select(2)-based fallback for platforms without a
// scalable epoll/kqueue backend. SPEC_FULL.md §4.5 EXPANSION documents this
// as a lower-throughput, development-only path: select's O(maxFd) scan and
// FD_SETSIZE descriptor ceiling make it unsuitable for the connection counts
// the spec's load-generation workloads target, but it keeps the reactor
// contract satisfiable everywhere the project might be built and tested.
type selectPoller struct {
	interests map[int]Interest
}

func newPlatformPoller() (Poller, error) {
	return &selectPoller{interests: make(map[int]Interest)}, nil
}

func (p *selectPoller) Add(fd int, interest Interest) error {
	p.interests[fd] = interest
	return nil
}

func (p *selectPoller) Modify(fd int, interest Interest) error {
	p.interests[fd] = interest
	return nil
}

func (p *selectPoller) Remove(fd int) error {
	delete(p.interests, fd)
	return nil
}

func (p *selectPoller) Wait(timeout time.Duration) ([]Event, error) {
	var rset, wset unix.FdSet
	maxFd := 0
	for fd, interest := range p.interests {
		if interest.Has(Read) {
			fdSet(&rset, fd)
		}
		if interest.Has(Write) {
			fdSet(&wset, fd)
		}
		if fd > maxFd {
			maxFd = fd
		}
	}

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	_, err := unix.Select(maxFd+1, &rset, &wset, nil, tv)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	var out []Event
	for fd, interest := range p.interests {
		readable := interest.Has(Read) && fdIsSet(&rset, fd)
		writable := interest.Has(Write) && fdIsSet(&wset, fd)
		if readable || writable {
			out = append(out, Event{Fd: fd, Readable: readable, Writable: writable})
		}
	}
	return out, nil
}

func (p *selectPoller) Close() error { return nil }

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
