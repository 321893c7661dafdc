// Package conn implements the Connection Engine from spec.md §4.6: the
// state machine that opens sockets, drives the connect handshake, serializes
// request sends, drains replies through internal/httpparse, and propagates
// failures per §7. Grounded on the teacher's core.Engine connection
// lifecycle (Connection/Reset/SetFD, the pooled-object pattern), rebuilt
// around a non-blocking outbound client socket instead of an inbound
// server listener.
package conn

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/netpool"
	"github.com/searchktools/httperfgo/internal/reactor"
	"github.com/searchktools/httperfgo/internal/registry"
	"github.com/searchktools/httperfgo/internal/syscalltime"
	"github.com/searchktools/httperfgo/internal/workerpool"
)

// Options configures every Connection the Engine creates. These mirror the
// transport/timing/behavior flag groups in SPEC_FULL.md §6.
type Options struct {
	Timeout      time.Duration
	ThinkTimeout time.Duration
	SendBuffer   int
	RecvBuffer   int
	CloseWithReset bool
	Hog            bool
	HTTPMajor, HTTPMinor int
	KeepAlive            bool
	SuppressHostHeader   bool
	UserAgentVersion     string
}

// Engine is the §9 Design Notes "single Core value": it owns the
// process-wide mutable state (object pools, host cache, port bitmaps via
// netpool, the timer wheel, the reactor) and is passed explicitly to every
// entry point instead of living behind package-level globals.
type Engine struct {
	Clock   *clock.Clock
	Bus     *event.Bus
	Reactor *reactor.Reactor
	Hosts   *netpool.HostCache
	Addrs   *netpool.AddressPool
	Opts    Options
	Log     *logrus.Logger

	// Syscalls records per-syscall timing when --verbose >= 2
	// (SPEC_FULL.md §4 EXPANSION); nil (the zero value) disables
	// recording with no overhead, so tests and callers that don't care
	// about timing never need to set it.
	Syscalls *syscalltime.Recorder

	conns    *registry.Pool[Connection]
	calls    *registry.Pool[Call]
	sessions *registry.Pool[Session]

	resolver    *workerpool.Pool
	completions *workerpool.CompletionQueue

	nextConnID uint64
	nextCallID uint64
	nextSessID uint64
}

// NewEngine wires the pools over the supplied collaborators. addrs may be
// an empty *netpool.AddressPool (no --hog / explicit source address
// configured); in that case connections are not bound at all, with or
// without --hog, and the OS picks the source address and port.
// resolver may be nil, in which case a two-worker pool is created for
// hostname-cache-miss resolution (SPEC_FULL.md §5 EXPANSION); rx.Drain is
// wired to the engine's completion queue so resolved lookups are applied
// on the reactor thread once per iteration.
func NewEngine(clk *clock.Clock, bus *event.Bus, rx *reactor.Reactor, hosts *netpool.HostCache, addrs *netpool.AddressPool, opts Options, log *logrus.Logger, resolver *workerpool.Pool) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if resolver == nil {
		resolver = workerpool.New(2)
	}
	e := &Engine{Clock: clk, Bus: bus, Reactor: rx, Hosts: hosts, Addrs: addrs, Opts: opts, Log: log,
		resolver: resolver, completions: workerpool.NewCompletionQueue()}
	if rx != nil {
		rx.Drain = e.completions.Drain
	}

	e.conns = registry.NewPool(bus, event.ConnNew, event.ConnDestroyed,
		func() *Connection { return &Connection{} },
		func(c *Connection) { c.fd = -1; c.state = Initial; c.engine = e; c.repliesSeen = 0 },
		func(c *Connection) {},
		func(c *Connection) *registry.RefCounted { return &c.RefCounted },
	)
	e.calls = registry.NewPool(bus, event.CallNew, event.CallDestroyed,
		func() *Call { return &Call{} },
		func(c *Call) {},
		func(c *Call) {},
		func(c *Call) *registry.RefCounted { return &c.RefCounted },
	)
	e.sessions = registry.NewPool(bus, event.SessNew, event.SessDestroyed,
		func() *Session { return &Session{} },
		func(s *Session) {},
		func(s *Session) {},
		func(s *Session) *registry.RefCounted { return &s.RefCounted },
	)
	return e
}

// ConnNew creates a Connection bound for (host, port) and immediately
// begins connecting (core_send's prerequisite, §4.9: "conn_new()").
func (e *Engine) ConnNew(host string, port int, hostHeader string) (*Connection, error) {
	e.nextConnID++
	c := e.conns.New()
	c.ID = e.nextConnID
	c.generation++
	c.Host = host
	c.Port = port
	c.HostHeaderLine = hostHeader
	c.sendq = callQueue{}
	c.recvq = callQueue{}
	c.parser = nil
	c.sourceAddr = nil
	c.sourcePort = 0

	if err := c.Open(); err != nil {
		return c, err
	}
	return c, nil
}

// SessNew creates a Session (§4.9: "sess_new()").
func (e *Engine) SessNew() *Session {
	e.nextSessID++
	s := e.sessions.New()
	s.ID = e.nextSessID
	s.Failed = false
	return s
}

// SessRelease drops the caller's reference to s (sess_dec_ref), returning
// it to the free list once the last reference is gone. Workload
// generators hold the one reference SessNew hands out and release it
// once every call in the session has completed or the session fails.
func (e *Engine) SessRelease(s *Session) {
	e.sessions.DecRef(s)
}

// CallNew allocates a Call from the pool. The returned Call still needs
// its request fields populated before CoreSend.
func (e *Engine) CallNew() *Call {
	e.nextCallID++
	c := e.calls.New()
	c.ID = e.nextCallID
	c.ExtraHeaderCount = 0
	c.Body = nil
	return c
}

// CoreSend enqueues call for sending on conn (§4.9: "core_send(conn,
// call)"). The engine takes the reference handed to it by enqueueing; the
// caller must not DecRef call itself afterward.
func (e *Engine) CoreSend(c *Connection, call *Call) {
	c.EnqueueSend(call)
}

// CoreClose performs a clean shutdown of conn (§4.9: "core_close(conn)").
func (e *Engine) CoreClose(c *Connection) {
	c.Close()
}

// resolveSync performs the one blocking-capable operation in the engine
// directly on the caller's goroutine. Only used by resolveAsync's worker
// goroutine and by callers (tests, a synchronous CLI preflight) that
// explicitly accept blocking — never called from the reactor thread.
func (e *Engine) resolveSync(host string, port int) (*net.TCPAddr, error) {
	return e.Hosts.Lookup(nil, host, port)
}

// resolveAsync resolves (host, port) off the reactor thread via the
// worker pool and delivers the result back through the completion queue,
// which the reactor drains once per RunOnce (SPEC_FULL.md §5 EXPANSION).
// done is invoked on the reactor thread, never concurrently with any
// other reactor-thread code.
func (e *Engine) resolveAsync(host string, port int, done func(*net.TCPAddr, error)) {
	e.resolver.Submit(func() {
		addr, err := e.resolveSync(host, port)
		e.completions.Push(func() { done(addr, err) })
		if e.Reactor != nil {
			e.Reactor.Wake()
		}
	})
}

// sourceBinding selects the next round-robin source address for a new
// connection, if any is configured, and — in hog mode — acquires an
// ephemeral port from that address's bitmap up front. With a source
// address configured, hog mode binds that address and port explicitly;
// without hog mode the address alone is bound and the OS still chooses
// the port. With no source address configured nothing is bound, and hog
// mode then acquires no port either.
func (e *Engine) sourceBinding() (src *netpool.SourceAddr, port int, bind bool, err error) {
	if e.Addrs == nil || e.Addrs.Len() == 0 {
		return nil, 0, false, nil
	}
	src, ok := e.Addrs.NextSource()
	if !ok {
		return nil, 0, false, nil
	}
	if !e.Opts.Hog {
		return src, 0, true, nil
	}
	p, aerr := src.AcquirePort()
	if aerr != nil {
		return nil, 0, false, netpool.ErrPortsExhausted
	}
	return src, p, true, nil
}

// Stats reports the three object pools' hit/miss counters.
func (e *Engine) Stats() (conns, calls, sessions registry.Stats) {
	return e.conns.Stats(), e.calls.Stats(), e.sessions.Stats()
}

func (e *Engine) String() string {
	return fmt.Sprintf("conn.Engine{conns=%d calls=%d sessions=%d}",
		e.conns.FreeListLen(), e.calls.FreeListLen(), e.sessions.FreeListLen())
}
