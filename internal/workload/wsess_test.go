package workload

import (
	"net"
	"testing"
	"time"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/netpool"
	"github.com/searchktools/httperfgo/internal/rate"
	"github.com/searchktools/httperfgo/internal/reactor"
)

// workloadHarness wires a real conn.Engine against a real loopback listener,
// the same way internal/conn's own tests do, plus a Runtime with a NewRate
// factory bound to sequential mode (fires every tick immediately) so a
// session-based generator can be driven deterministically by RunOnce.
type workloadHarness struct {
	t      *testing.T
	ln     net.Listener
	clk    *clock.Clock
	bus    *event.Bus
	rx     *reactor.Reactor
	engine *conn.Engine
	rt     *Runtime
	done   bool
}

func newWorkloadHarness(t *testing.T) *workloadHarness {
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

	opts := conn.Options{
		Timeout:   2 * time.Second,
		HTTPMajor: 1,
		HTTPMinor: 1,
		KeepAlive: true,
	}
	engine := conn.NewEngine(clk, bus, rx, hosts, addrs, opts, nil, nil)

	h := &workloadHarness{t: t, ln: ln, clk: clk, bus: bus, rx: rx, engine: engine}
	h.rt = &Runtime{
		Engine: engine,
		Bus:    bus,
		NewRate: func(tick rate.TickFunc) *rate.Generator {
			return rate.New(clk, bus, rate.Info{RateParam: 0}, 0, tick)
		},
		Done: func() { h.done = true },
	}
	return h
}

func (h *workloadHarness) listenAddr() (string, int) {
	addr := h.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func (h *workloadHarness) pump(timeout time.Duration, stop func() bool) {
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

// serveRequests accepts one connection and replies "HTTP/1.1 200 OK" with a
// fixed 2-byte body to each of its first n reads, then closes the
// connection — enough to drive a multi-call session end to end.
func serveRequests(t *testing.T, ln net.Listener, n int) {
	t.Helper()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 4096)
		for i := 0; i < n; i++ {
			if _, err := c.Read(buf); err != nil {
				return
			}
			if _, err := c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK")); err != nil {
				return
			}
		}
	}()
}

// TestWsessCompletesConfiguredSessions drives a single session of two
// sequential calls to completion and expects Runtime.Done to fire once the
// one configured session is destroyed.
func TestWsessCompletesConfiguredSessions(t *testing.T) {
	h := newWorkloadHarness(t)
	ip, port := h.listenAddr()
	serveRequests(t, h.ln, 2)

	g := &Wsess{Cfg: WsessConfig{
		NumSessions: 1,
		NumCalls:    2,
		BurstLen:    1,
		Host:        ip,
		Port:        port,
		HostHeader:  "example.com",
	}}
	if err := g.Init(h.rt); err != nil {
		t.Fatalf("Init: %v", err)
	}
	g.Start()
	defer g.Stop()

	h.pump(2*time.Second, func() bool { return h.done })
	if !h.done {
		t.Fatalf("expected the session to complete and Done to fire")
	}
}

// TestWsessBurstPlanSplitsIntoBursts checks the pure burstPlan helper
// directly: NumCalls not evenly divisible by BurstLen must still account
// for every call, with the last burst short.
func TestWsessBurstPlanSplitsIntoBursts(t *testing.T) {
	g := &Wsess{Cfg: WsessConfig{NumCalls: 5, BurstLen: 2, ThinkTime: time.Second}}
	bursts := g.burstPlan()
	total := 0
	for _, b := range bursts {
		total += len(b.Requests)
	}
	if total != 5 {
		t.Fatalf("expected 5 total requests across bursts, got %d", total)
	}
	if len(bursts[len(bursts)-1].Requests) != 1 {
		t.Fatalf("expected the last burst to be the 1-request remainder, got %d bursts: %+v", len(bursts), bursts)
	}
}
