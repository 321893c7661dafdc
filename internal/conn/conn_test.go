package conn

import (
	"net"
	"testing"
	"time"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/netpool"
	"github.com/searchktools/httperfgo/internal/reactor"
)

// testHarness wires a real Engine against a real loopback listener, driven
// by RunOnce in the test goroutine rather than a background Run loop, so
// assertions can interleave deterministically with I/O readiness.
type testHarness struct {
	t       *testing.T
	ln      net.Listener
	clk     *clock.Clock
	bus     *event.Bus
	rx      *reactor.Reactor
	engine  *Engine
	failed  []FailureKind
	closed  []uint64
}

func newHarness(t *testing.T, opts Options) *testHarness {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	poller, err := reactor.NewPoller()
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	clk := clock.New()
	bus := event.New()
	rx := reactor.New(poller, clk, nil)
	hosts := netpool.NewHostCache()
	addrs := netpool.NewAddressPool()

	h := &testHarness{t: t, ln: ln, clk: clk, bus: bus, rx: rx}
	h.engine = NewEngine(clk, bus, rx, hosts, addrs, opts, nil, nil)

	bus.Register(event.ConnFailed, func(_ event.Kind, subject any, _, arg any) {
		h.failed = append(h.failed, arg.(FailureKind))
	}, nil)
	bus.Register(event.ConnClose, func(_ event.Kind, subject any, _, _ any) {
		h.closed = append(h.closed, subject.(*Connection).ID)
	}, nil)

	return h
}

func (h *testHarness) listenAddr() (string, int) {
	addr := h.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// pump drives the reactor until deadline passes or stop returns true.
func (h *testHarness) pump(timeout time.Duration, stop func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if stop != nil && stop() {
			return
		}
		if _, err := h.rx.RunOnce(); err != nil {
			h.t.Fatalf("RunOnce: %v", err)
		}
	}
}

// acceptOnce accepts a single connection on the harness listener and
// returns it for the test to drive the server side manually.
func (h *testHarness) acceptOnce() net.Conn {
	h.t.Helper()
	c, err := h.ln.Accept()
	if err != nil {
		h.t.Fatalf("accept: %v", err)
	}
	return c
}

func defaultOptions() Options {
	return Options{
		Timeout:      2 * time.Second,
		ThinkTimeout: 0,
		HTTPMajor:    1,
		HTTPMinor:    1,
		KeepAlive:    true,
	}
}

// TestBasicRequestReplyRoundTrip exercises S1: connect, send one request,
// receive a content-length-terminated reply, and observe the parsed Reply
// on the completed Call.
func TestBasicRequestReplyRoundTrip(t *testing.T) {
	h := newHarness(t, defaultOptions())
	ip, port := h.listenAddr()

	acceptedCh := make(chan net.Conn, 1)
	go func() { acceptedCh <- h.acceptOnce() }()

	c, err := h.engine.ConnNew(ip, port, "example.com")
	if err != nil {
		t.Fatalf("ConnNew: %v", err)
	}

	var server net.Conn
	h.pump(time.Second, func() bool {
		select {
		case server = <-acceptedCh:
			return true
		default:
			return false
		}
	})
	if server == nil {
		t.Fatalf("server side never accepted")
	}
	defer server.Close()

	call := h.engine.CallNew()
	call.Method = "GET"
	call.URI = "/"
	call.ProtocolLine = "HTTP/1.1"
	call.HostHeader = "Host: example.com"

	var done bool
	h.bus.Register(event.CallRecvStop, func(_ event.Kind, subject any, _, _ any) {
		done = true
	}, nil)

	h.engine.CoreSend(c, call)
	h.pump(2*time.Second, func() bool { return false })

	if _, err := server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")); err != nil {
		t.Fatalf("server write: %v", err)
	}

	h.pump(2*time.Second, func() bool { return done })
	if !done {
		t.Fatalf("call never completed")
	}
	if call.Reply.Status != 200 {
		t.Fatalf("expected status 200, got %d", call.Reply.Status)
	}
	if call.Reply.ContentBytes != 5 {
		t.Fatalf("expected 5 content bytes, got %d", call.Reply.ContentBytes)
	}
}

// TestReplyTimeoutFiresWatchdog exercises S5: a connection whose peer never
// replies must fail with FailureReplyTimeout once Timeout+ThinkTimeout
// elapses, and the failing call must be released from recvq.
func TestReplyTimeoutFiresWatchdog(t *testing.T) {
	opts := defaultOptions()
	opts.Timeout = 80 * time.Millisecond
	h := newHarness(t, opts)
	ip, port := h.listenAddr()

	acceptedCh := make(chan net.Conn, 1)
	go func() { acceptedCh <- h.acceptOnce() }()

	c, err := h.engine.ConnNew(ip, port, "")
	if err != nil {
		t.Fatalf("ConnNew: %v", err)
	}

	var server net.Conn
	h.pump(time.Second, func() bool {
		select {
		case server = <-acceptedCh:
			return true
		default:
			return false
		}
	})
	if server == nil {
		t.Fatalf("server side never accepted")
	}
	defer server.Close()

	call := h.engine.CallNew()
	call.Method = "GET"
	call.URI = "/slow"
	call.ProtocolLine = "HTTP/1.1"

	h.engine.CoreSend(c, call)

	h.pump(2*time.Second, func() bool { return len(h.failed) > 0 })

	if len(h.failed) != 1 || h.failed[0] != FailureReplyTimeout {
		t.Fatalf("expected exactly one FailureReplyTimeout, got %v", h.failed)
	}
	if c.state != Free {
		t.Fatalf("expected connection to reach Free after watchdog fail, got %v", c.state)
	}
}

// TestPipelinedCallsResolveInOrder exercises S6 at the full Connection
// layer: two calls sent back-to-back before any reply arrives must each
// resolve to their own reply, in send order, over one socket.
func TestPipelinedCallsResolveInOrder(t *testing.T) {
	h := newHarness(t, defaultOptions())
	ip, port := h.listenAddr()

	acceptedCh := make(chan net.Conn, 1)
	go func() { acceptedCh <- h.acceptOnce() }()

	c, err := h.engine.ConnNew(ip, port, "")
	if err != nil {
		t.Fatalf("ConnNew: %v", err)
	}

	var server net.Conn
	h.pump(time.Second, func() bool {
		select {
		case server = <-acceptedCh:
			return true
		default:
			return false
		}
	})
	if server == nil {
		t.Fatalf("server side never accepted")
	}
	defer server.Close()

	newCall := func(uri string) *Call {
		call := h.engine.CallNew()
		call.Method = "GET"
		call.URI = uri
		call.ProtocolLine = "HTTP/1.1"
		return call
	}
	call1 := newCall("/first")
	call2 := newCall("/second")

	var completed []string
	h.bus.Register(event.CallRecvStop, func(_ event.Kind, subject any, _, _ any) {
		completed = append(completed, subject.(*Call).URI)
	}, nil)

	h.engine.CoreSend(c, call1)
	h.engine.CoreSend(c, call2)
	h.pump(time.Second, func() bool { return false })

	if _, err := server.Write([]byte(
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nAA" +
			"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nBB",
	)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	h.pump(2*time.Second, func() bool { return len(completed) == 2 })
	if len(completed) != 2 || completed[0] != "/first" || completed[1] != "/second" {
		t.Fatalf("expected [/first /second] in order, got %v", completed)
	}
}

// TestCallNeverResidesInBothQueues is an invariant check (§3): a Call
// moved from sendq to recvq sits in only one of the two queues before and
// after the move, never both.
func TestCallNeverResidesInBothQueues(t *testing.T) {
	h := newHarness(t, defaultOptions())
	c, err := h.engine.ConnNew("127.0.0.1", 1, "")
	_ = err // connect failure is fine; we only exercise the queues directly
	_ = c

	conn := &Connection{engine: h.engine}
	call := &Call{ID: 1}
	conn.sendq.pushBack(call)
	if conn.recvq.front() == call {
		t.Fatalf("call present in recvq while also in sendq")
	}
	popped := conn.sendq.popFront()
	conn.recvq.pushBack(popped)
	if conn.sendq.front() == call {
		t.Fatalf("call still present in sendq after transfer to recvq")
	}
}

// TestSourcePortReleasedOnClose exercises the hog-mode port lifecycle: a
// port acquired at connect time must return to the pool once the
// connection closes, so a later connection can reuse it.
func TestSourcePortReleasedOnClose(t *testing.T) {
	opts := defaultOptions()
	opts.Hog = true
	h := newHarness(t, opts)
	if err := h.engine.Addrs.AddAddresses("127.0.0.1"); err != nil {
		t.Fatalf("AddAddresses: %v", err)
	}

	ip, port := h.listenAddr()
	acceptedCh := make(chan net.Conn, 1)
	go func() { acceptedCh <- h.acceptOnce() }()

	c, err := h.engine.ConnNew(ip, port, "")
	if err != nil {
		t.Fatalf("ConnNew: %v", err)
	}
	if c.sourceAddr == nil || c.sourcePort == 0 {
		t.Fatalf("expected hog mode to bind a source address and port")
	}
	boundPort := c.sourcePort
	src := c.sourceAddr

	var server net.Conn
	h.pump(time.Second, func() bool {
		select {
		case server = <-acceptedCh:
			return true
		default:
			return false
		}
	})
	server.Close()

	h.engine.CoreClose(c)
	if c.state != Free {
		t.Fatalf("expected Free after CoreClose, got %v", c.state)
	}
	if c.sourceAddr != nil || c.sourcePort != 0 {
		t.Fatalf("expected sourceAddr/sourcePort cleared after close")
	}

	// The bitmap's ascending scan order (preserved from httperf's
	// port_get) does not re-offer a just-released port until the scan
	// wraps, so assert only that the pool is usable again, not that the
	// exact port number comes back immediately.
	if _, err := src.AcquirePort(); err != nil {
		t.Fatalf("AcquirePort after release: %v", err)
	}
	_ = boundPort
}
