package workload

import (
	"bufio"
	"strings"
	"testing"
	"time"
)

// TestSessionCookiesPropagate drives a two-call session where the first
// reply carries a Set-Cookie header and checks the second request carries
// it back as a Cookie header, mirroring sess_cookie.c's round trip.
func TestSessionCookiesPropagate(t *testing.T) {
	h := newWorkloadHarness(t)
	h.rt.SessionCookies = true
	ip, port := h.listenAddr()

	sawCookie := make(chan bool, 1)
	go func() {
		c, err := h.ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		r := bufio.NewReader(c)

		readRequestHeaders(r)
		c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nSet-Cookie: sid=abc123; Path=/\r\n\r\nOK"))

		lines := readRequestHeaders(r)
		has := false
		for _, l := range lines {
			if strings.EqualFold(l, "Cookie: sid=abc123") {
				has = true
			}
		}
		sawCookie <- has
		c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK"))
	}()

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
		t.Fatalf("expected session to complete")
	}
	select {
	case has := <-sawCookie:
		if !has {
			t.Fatalf("expected second request to carry the cookie captured from the first reply")
		}
	default:
		t.Fatalf("server never observed the second request")
	}
}

// TestSessionRetryOnFailureReconnects drives a session whose connection is
// dropped by the peer after the first reply, with --retry-on-failure set,
// and expects the session to reconnect and finish rather than failing.
func TestSessionRetryOnFailureReconnects(t *testing.T) {
	h := newWorkloadHarness(t)
	h.rt.RetryOnFailure = true
	ip, port := h.listenAddr()

	go func() {
		c, err := h.ln.Accept()
		if err != nil {
			return
		}
		r := bufio.NewReader(c)
		readRequestHeaders(r)
		c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK"))
		c.Close() // drop the connection before the second request is answered

		c2, err := h.ln.Accept()
		if err != nil {
			return
		}
		defer c2.Close()
		r2 := bufio.NewReader(c2)
		readRequestHeaders(r2)
		c2.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK"))
	}()

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
		t.Fatalf("expected the session to reconnect and complete instead of failing")
	}
}

// TestSessionFailureStatusReissues drives a single-call session whose reply
// matches --failure-status with --retry-on-failure set, and expects the
// call to be reissued on the same connection rather than failing the
// session outright.
func TestSessionFailureStatusReissues(t *testing.T) {
	h := newWorkloadHarness(t)
	h.rt.RetryOnFailure = true
	h.rt.FailureStatus = 500
	ip, port := h.listenAddr()

	go func() {
		c, err := h.ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		r := bufio.NewReader(c)

		readRequestHeaders(r)
		c.Write([]byte("HTTP/1.1 500 Internal Server Error\r\nContent-Length: 0\r\n\r\n"))

		readRequestHeaders(r)
		c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK"))
	}()

	g := &Wsess{Cfg: WsessConfig{
		NumSessions: 1,
		NumCalls:    1,
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
		t.Fatalf("expected the reissued call to succeed and the session to complete")
	}
}

// readRequestHeaders reads one request's request-line and header lines off
// r, stopping at the blank line terminator, and returns the header lines
// (the request line included) for assertions.
func readRequestHeaders(r *bufio.Reader) []string {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return lines
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			return lines
		}
		lines = append(lines, trimmed)
	}
}
