package conn

import (
	"net"
	"time"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/httpparse"
	"github.com/searchktools/httperfgo/internal/netpool"
	"github.com/searchktools/httperfgo/internal/reactor"
	"github.com/searchktools/httperfgo/internal/registry"
	"github.com/searchktools/httperfgo/internal/syscalltime"
)

const recvBufSize = 8192 // §4.6 "Receive path": up to a buffer (8 KiB) is read

// Connection represents one TCP socket to one (server, port) (§3). It is
// pool-managed by Engine.conns; fields are reset by (*Engine).resetConn
// between a DecRef-to-zero and the next New.
type Connection struct {
	registry.RefCounted

	ID         uint64
	generation uint64 // bumped on every ConnNew; guards stale async-resolve completions against pool reuse

	Host           string
	Port           int
	HostHeaderLine string // "" suppresses the Host header entirely

	addr       *net.TCPAddr
	sourceAddr *netpool.SourceAddr // nil if bound from the wildcard address
	sourcePort int                 // bound ephemeral port, 0 if unbound

	fd    int
	state State

	sendq callQueue
	recvq callQueue

	// repliesSeen counts calls that completed a full reply on this
	// connection, so a caller deciding whether a failure is worth
	// retrying (--retry-on-failure, spec.md §4 Propagation: "the call
	// had at least one prior reply on its connection") can tell a
	// connection that never worked apart from one that did.
	repliesSeen int

	watchdog clock.Handle

	parser *httpparse.Parser

	engine *Engine
}

// RepliesSeen reports how many calls have completed a full reply on this
// connection so far.
func (c *Connection) RepliesSeen() int { return c.repliesSeen }

// Open begins the connect sequence: resolves the destination (synchronous
// cache hit, or async via the engine's resolver for a miss), creates a
// non-blocking socket, optionally binds a source address/port, and issues
// connect(). On success the connection is Connecting and armed with the
// connect-timeout watchdog.
func (c *Connection) Open() error {
	addr, ok := c.engine.Hosts.Peek(c.Host, c.Port)
	if ok {
		c.addr = addr
		return c.startConnecting()
	}
	gen := c.generation
	c.engine.resolveAsync(c.Host, c.Port, func(resolved *net.TCPAddr, err error) {
		if c.generation != gen || c.state == Free {
			return // connection was released/reused while the lookup was in flight
		}
		if err != nil {
			c.fail(FailureOtherConnect)
			return
		}
		c.addr = resolved
		_ = c.startConnecting()
	})
	return nil
}

func (c *Connection) startConnecting() error {
	fd, err := newNonblockingSocket()
	if err != nil {
		c.fail(classifyConnectError(err))
		return err
	}
	c.fd = fd

	src, port, bind, berr := c.engine.sourceBinding()
	if berr != nil {
		closeSocket(fd)
		c.fail(FailurePortExhausted)
		return berr
	}
	if bind {
		if err := c.engine.Syscalls.Track(syscalltime.Bind, func() error { return bindSource(fd, src.IP, port) }); err != nil {
			closeSocket(fd)
			c.fail(classifyConnectError(err))
			return err
		}
		c.sourceAddr = src
		c.sourcePort = port
	}

	if err := applySocketOptions(fd, c.engine.Opts.SendBuffer, c.engine.Opts.RecvBuffer, c.engine.Opts.CloseWithReset); err != nil {
		closeSocket(fd)
		c.fail(classifyConnectError(err))
		return err
	}

	var inProgress bool
	err = c.engine.Syscalls.Track(syscalltime.Connect, func() error {
		var cerr error
		inProgress, cerr = startConnect(fd, c.addr)
		return cerr
	})
	if err != nil {
		closeSocket(fd)
		c.fail(classifyConnectError(err))
		return err
	}

	c.state = Connecting
	c.engine.Bus.Signal(event.ConnConnecting, c, nil)

	interest := reactor.Write
	if err := c.engine.Reactor.Watch(fd, interest, c.onReadiness); err != nil {
		closeSocket(fd)
		c.fail(FailureOtherConnect)
		return err
	}

	c.armWatchdog(c.engine.Opts.Timeout, FailureConnectTimeout)

	if !inProgress {
		// connect() completed synchronously (common on loopback).
		c.completeConnect()
	}
	return nil
}

// onReadiness is the reactor callback for this connection's socket,
// dispatching to the state-appropriate handler (§4.5 contract item 3).
func (c *Connection) onReadiness(fd int, ev reactor.Event) {
	if c.state == Closing || c.state == Free {
		return
	}
	if ev.Err {
		c.failIO(FailureReset, false)
		return
	}
	switch c.state {
	case Connecting:
		if ev.Writable {
			c.handleConnectWritable()
		}
	default:
		if ev.Writable {
			c.flushSendQueue()
		}
		if ev.Readable {
			c.readAvailable()
		}
	}
}

func (c *Connection) handleConnectWritable() {
	if err := checkConnectError(c.fd); err != nil {
		c.fail(classifyConnectError(err))
		return
	}
	c.completeConnect()
}

func (c *Connection) completeConnect() {
	c.cancelWatchdog()
	c.state = Connected
	c.engine.Bus.Signal(event.ConnConnected, c, nil)
	_ = c.engine.Reactor.Rewatch(c.fd, reactor.Read)
	c.flushSendQueue()
}

// EnqueueSend appends call to sendq and, if the connection is already
// Connected, kicks the send path (core_send per §4.9); before that,
// completeConnect flushes the queue once the connect finishes.
func (c *Connection) EnqueueSend(call *Call) {
	call.Connection = c
	call.resetSendProgress()
	c.sendq.pushBack(call)
	c.engine.Bus.Signal(event.CallIssue, call, nil)
	if c.state == Connected {
		c.flushSendQueue()
	}
}

// flushSendQueue drains sendq.head's iovec as far as the socket accepts
// without blocking, transferring completed calls to recvq (§4.6 "Send
// path").
func (c *Connection) flushSendQueue() {
	for {
		call := c.sendq.front()
		if call == nil {
			return
		}
		frags := call.Iovec()
		if call.iovIndex == 0 && call.iovOffset == 0 {
			c.engine.Bus.Signal(event.CallSendStart, call, nil)
		}

		for call.iovIndex < len(frags) {
			frag := frags[call.iovIndex][call.iovOffset:]
			var n int
			err := c.engine.Syscalls.Track(syscalltime.Writev, func() error {
				var werr error
				n, werr = writeSocket(c.fd, frag)
				return werr
			})
			if n > 0 {
				c.engine.Bus.Signal(event.CallSendRawData, call, n)
				call.iovOffset += n
				if call.iovOffset >= len(frags[call.iovIndex]) {
					call.iovIndex++
					call.iovOffset = 0
				}
			}
			if err != nil {
				if err == errEAgain {
					_ = c.engine.Reactor.Rewatch(c.fd, reactor.Read|reactor.Write)
					return
				}
				if err == errEIntr {
					continue
				}
				c.failIO(classifyIOError(err, true), true)
				return
			}
			if n == 0 && err == nil {
				// should not happen on a stream socket mid-write; treat
				// as a stall rather than spinning.
				return
			}
		}

		c.sendq.popFront()
		c.engine.Bus.Signal(event.CallSendStop, call, nil)
		wasEmpty := c.recvq.empty()
		c.recvq.pushBack(call)
		call.Deadline = c.engine.Clock.Now().Add(c.engine.Opts.Timeout + c.engine.Opts.ThinkTimeout)
		// Only the head of recvq governs the watchdog (§5: minimum of all
		// calls' deadlines); a call appended behind an already-pending one
		// never has an earlier deadline, so leave the existing timer be.
		if wasEmpty {
			c.armWatchdog(c.engine.Opts.Timeout+c.engine.Opts.ThinkTimeout, FailureReplyTimeout)
		}
		c.engine.Bus.Signal(event.CallRecvStart, call, nil)

		if c.parser == nil {
			c.parser = httpparse.New(c.engine.Bus)
		}
		if wasEmpty {
			c.parser.BeginReply(call.Method)
		}

		if !c.sendq.empty() {
			c.engine.Bus.Signal(event.CallSendStart, c.sendq.front(), nil)
		}
	}
}

// readAvailable reads up to recvBufSize bytes and feeds them to the
// parser against recvq's head (§4.6 "Receive path").
func (c *Connection) readAvailable() {
	var buf [recvBufSize]byte
	var n int
	err := c.engine.Syscalls.Track(syscalltime.Read, func() error {
		var rerr error
		n, rerr = readSocket(c.fd, buf[:])
		return rerr
	})
	if err != nil {
		if err == errEAgain {
			return
		}
		if err == errEIntr {
			return
		}
		c.failIO(classifyIOError(err, false), false)
		return
	}
	if n == 0 {
		c.handleEOF()
		return
	}

	data := buf[:n]
	for len(data) > 0 {
		call := c.recvq.front()
		if call == nil {
			// bytes arrived with nothing awaiting reply: protocol
			// confusion, treat as a reset rather than discard silently.
			c.fail(FailureReset)
			return
		}
		if c.parser == nil {
			c.parser = httpparse.New(c.engine.Bus)
			c.parser.BeginReply(call.Method)
		}
		rest, done, perr := c.parser.Process(call, data)
		data = rest
		if perr != nil {
			c.fail(FailureBadStatusLine)
			return
		}
		if done {
			c.recvq.popFront()
			call.Reply = c.parser.Reply
			c.repliesSeen++
			c.cancelWatchdog()
			c.engine.calls.DecRef(call)
			if next := c.recvq.front(); next != nil {
				c.parser.BeginReply(next.Method)
				c.armWatchdogForHead()
			}
		} else {
			return
		}
	}
}

func (c *Connection) handleEOF() {
	if c.parser != nil {
		completed, reset := c.parser.HandleEOF(c.recvq.front())
		if completed {
			call := c.recvq.popFront()
			if call != nil {
				call.Reply = c.parser.Reply
				c.cancelWatchdog()
				c.engine.calls.DecRef(call)
			}
			c.fail(FailureReset) // read-until-close body ends with the peer closing; nothing left to serve
			return
		}
		if reset {
			c.failIO(FailureReset, false)
			return
		}
	}
	c.failIO(FailureReset, false)
}

// armWatchdogForHead re-arms the watchdog for recvq's new head after its
// predecessor completed, matching §5: "the connection's watchdog is
// computed as the minimum of all its calls' deadlines on every interest
// change."
func (c *Connection) armWatchdogForHead() {
	head := c.recvq.front()
	if head == nil {
		return
	}
	remaining := head.Deadline.Sub(c.engine.Clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	c.armWatchdog(remaining, FailureReplyTimeout)
}

func (c *Connection) armWatchdog(delay time.Duration, onFire FailureKind) {
	c.cancelWatchdog()
	if c.engine.Opts.Timeout <= 0 {
		return // --timeout 0 leaves connect and reply waits unbounded
	}
	c.watchdog = c.engine.Clock.Schedule(func(*clock.Timer, any) {
		c.watchdog = nil
		c.engine.Bus.Signal(event.ConnTimeout, c, onFire)
		c.fail(onFire)
	}, c, delay)
}

func (c *Connection) cancelWatchdog() {
	if c.watchdog != nil {
		_ = c.engine.Clock.Cancel(c.watchdog)
		c.watchdog = nil
	}
}

// failIO is the shared exit of the write-side and read-side I/O error
// paths; both converge on fail. wasWrite mirrors classifyIOError's
// argument at the call sites and is not used.
func (c *Connection) failIO(kind FailureKind, wasWrite bool) {
	_ = wasWrite
	c.fail(kind)
}

// fail transitions the connection to Closing, signals CONN_FAILED with
// kind, and drops references to every enqueued call (§7).
func (c *Connection) fail(kind FailureKind) {
	if c.state == Closing || c.state == Free {
		return
	}
	c.cancelWatchdog()
	c.state = Closing
	c.engine.Bus.Signal(event.ConnFailed, c, kind)

	c.sendq.removeAll(func(call *Call) { c.engine.calls.DecRef(call) })
	c.recvq.removeAll(func(call *Call) { c.engine.calls.DecRef(call) })

	c.closeSocketAndRelease()
}

// Close performs a clean, non-error shutdown (engine.CoreClose), e.g. at
// the end of a run or when a generator is done with this connection.
func (c *Connection) Close() {
	if c.state == Closing || c.state == Free {
		return
	}
	c.cancelWatchdog()
	c.state = Closing
	c.engine.Bus.Signal(event.ConnClose, c, nil)
	c.sendq.removeAll(func(call *Call) { c.engine.calls.DecRef(call) })
	c.recvq.removeAll(func(call *Call) { c.engine.calls.DecRef(call) })
	c.closeSocketAndRelease()
}

func (c *Connection) closeSocketAndRelease() {
	if c.fd >= 0 {
		_ = c.engine.Reactor.Unwatch(c.fd)
		_ = closeSocket(c.fd)
		c.fd = -1
	}
	if c.sourceAddr != nil && c.sourcePort != 0 {
		c.sourceAddr.ReleasePort(c.sourcePort)
	}
	c.sourceAddr = nil
	c.sourcePort = 0
	c.state = Free
	c.engine.conns.DecRef(c)
}
