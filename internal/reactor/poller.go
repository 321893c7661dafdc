// Package reactor implements the non-blocking I/O multiplexer described in
// spec.md §4.5, grounded on the teacher's core/poller package but rebuilt on
// golang.org/x/sys/unix so a single descriptor can carry independent read
// and write interest (the teacher's EpollPoller/KqueuePoller only ever
// watched for readability, which the connection engine's send path needs as
// well whenever a socket write would block).
package reactor

import "time"

// Interest is a bitmask of the readiness conditions a descriptor should be
// watched for.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write
)

// Has reports whether want is a subset of i.
func (i Interest) Has(want Interest) bool { return i&want == want }

// Event reports one descriptor's readiness after a Wait call. Readable and
// Writable are independent: a socket mid-handshake can be writable without
// being readable, and vice versa. Err indicates a poller-level error
// condition (e.g. EPOLLERR/EPOLLHUP, or an EV_EOF kqueue flag) that the
// connection engine maps to FailureKind regardless of which interest was
// registered.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Err      bool
}

// Poller is the platform I/O multiplexer contract. Exactly one notification
// per registered direction per descriptor is delivered per Wait call
// (spec.md §4.5); no descriptor starves another as long as Wait is called
// promptly.
type Poller interface {
	// Add begins watching fd for the given interest.
	Add(fd int, interest Interest) error
	// Modify changes fd's watched interest (e.g. dropping Write once a
	// connect() or partial write completes).
	Modify(fd int, interest Interest) error
	// Remove stops watching fd. Callers must Remove before closing fd;
	// closing a still-registered fd is undefined on some platforms.
	Remove(fd int) error
	// Wait blocks for at most timeout (or indefinitely if timeout < 0)
	// and returns the descriptors that became ready. A timeout of 0
	// polls without blocking.
	Wait(timeout time.Duration) ([]Event, error)
	// Close releases the poller's own resources (e.g. the epoll/kqueue
	// descriptor). It does not close any watched fd.
	Close() error
}
