package workload

import (
	"strings"
	"time"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
)

// Request describes one call to issue within a burst, as parsed from a
// --wsesslog recipe or synthesized by --wsess/--wsesspage.
type Request struct {
	Method       string
	URI          string
	ExtraHeaders []string
	Body         []byte
}

// Burst is one non-indented line plus its indented continuations in a
// --wsesslog recipe (spec.md §6), or the single repeated shape
// --wsess/--wsesspage use: the first request fires immediately, the rest
// fire once the first reply confirms the connection is alive, and
// ThinkTime elapses before the next burst begins.
type Burst struct {
	Requests  []Request
	ThinkTime time.Duration
}

// sessionRuntime is the machinery shared by wsess, wsesspage, and
// wsesslog: each session opens exactly one Connection and pipelines one
// burst's worth of calls on it at a time. This simplifies the original's
// session.c, which maintains a pool of up to --max-connections
// connections each carrying up to --max-piped-calls pipelined calls and
// transparently reconnects and replays on mid-session connection
// failure; a single-connection model covers every documented --wsess*
// scenario in spec.md §6 and is recorded as a deliberate scope
// simplification in DESIGN.md rather than silently dropped behavior.
type sessionRuntime struct {
	rt      *Runtime
	host    string
	port    int
	hostHdr string
}

type sessionState struct {
	sr  *sessionRuntime
	sess *conn.Session
	c    *conn.Connection

	bursts           []Burst
	burstIdx         int
	sentInBurst      int
	destroyedInBurst int
	totalCalls       int
	totalDestroyed   int

	// cookie holds the most recently observed Set-Cookie value for this
	// session, stamped onto every later request when --session-cookies is
	// set. Only one cookie is tracked at a time, same simplification the
	// original's sess_cookie.c documents ("can't handle more than one
	// cookie at a time, replacing existing one").
	cookie string

	onDone func(st *sessionState) // invoked exactly once, success or failure
}

const sessionExtraKey = "workload.sessionState"

func callSession(c *conn.Call) *sessionState {
	v, _ := c.Extra(sessionExtraKey, func() any { return (*sessionState)(nil) }).(*sessionState)
	return v
}

// registerSessionHandlers wires the three bus handlers every session-based
// generator needs, grounded on session.c's call_destroyed and
// sess_cookie.c's call_recv_hdr: advance the owning session's burst state
// when one of its calls is destroyed, reconnect or fail the session when
// its connection fails, and capture Set-Cookie reply headers. Safe to
// call once per Runtime (idempotent generators should
// guard against double-registration if they share a Runtime, though in
// practice exactly one session-oriented generator runs per process).
func registerSessionHandlers(bus *event.Bus) {
	bus.Register(event.CallDestroyed, func(_ event.Kind, subject any, _, _ any) {
		call := subject.(*conn.Call)
		st := callSession(call)
		if st == nil {
			return
		}
		st.onCallDestroyed(call)
	}, nil)
	bus.Register(event.ConnFailed, func(_ event.Kind, subject any, _, _ any) {
		c := subject.(*conn.Connection)
		st := connSession(c)
		if st == nil {
			return
		}
		st.onConnFailed(c)
	}, nil)
	bus.Register(event.CallRecvHdr, func(_ event.Kind, subject any, _, arg any) {
		call := subject.(*conn.Call)
		st := callSession(call)
		if st == nil {
			return
		}
		st.observeHeader(arg.([]byte))
	}, nil)
}

// observeHeader captures a Set-Cookie value, mirroring sess_cookie.c's
// call_recv_hdr: it keeps the cookie text up to the first ';' (discarding
// any Path/Domain/Expires attributes) and replaces whatever cookie was
// captured earlier in the session.
func (st *sessionState) observeHeader(line []byte) {
	const prefix = "set-cookie: "
	if len(line) <= len(prefix) {
		return
	}
	if !strings.EqualFold(string(line[:len(prefix)]), prefix) {
		return
	}
	value := string(line[len(prefix):])
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	st.cookie = value
}

func connSession(c *conn.Connection) *sessionState {
	v, _ := c.Extra(sessionExtraKey, func() any { return (*sessionState)(nil) }).(*sessionState)
	return v
}

func newSessionRuntime(rt *Runtime, host string, port int, hostHdr string) *sessionRuntime {
	return &sessionRuntime{rt: rt, host: host, port: port, hostHdr: hostHdr}
}

func (sr *sessionRuntime) start(bursts []Burst, onDone func(*sessionState)) *sessionState {
	total := 0
	for _, b := range bursts {
		total += len(b.Requests)
	}
	st := &sessionState{sr: sr, bursts: bursts, totalCalls: total, onDone: onDone}
	st.sess = sr.rt.Engine.SessNew()

	c, err := sr.rt.Engine.ConnNew(sr.host, sr.port, sr.hostHdr)
	st.c = c
	if err != nil {
		st.fail()
		return st
	}
	c.Extra(sessionExtraKey, func() any { return st })
	st.issueBurst()
	return st
}

// appendBurst adds an additional burst discovered only after an earlier
// burst's reply arrived (Wsesspage's page-scrape result), keeping
// totalCalls in sync so onCallDestroyed's completion check still fires
// at the right count.
func (st *sessionState) appendBurst(b Burst) {
	st.bursts = append(st.bursts, b)
	st.totalCalls += len(b.Requests)
}

// issueBurst sends the current burst's requests that haven't been sent
// yet. Grounded on session.c's issue_calls: the first call of a burst is
// sent alone; the remainder follow once call_destroyed confirms the
// first one round-tripped, mirroring a browser fetching a page then its
// embedded objects.
func (st *sessionState) issueBurst() {
	if st.sess.Failed || st.burstIdx >= len(st.bursts) {
		return
	}
	burst := st.bursts[st.burstIdx]

	toSend := 1
	if st.sentInBurst > 0 {
		toSend = len(burst.Requests) - st.sentInBurst
	}
	for i := 0; i < toSend && st.sentInBurst < len(burst.Requests); i++ {
		req := burst.Requests[st.sentInBurst]
		st.sentInBurst++

		call := st.sr.rt.Engine.CallNew()
		call.Method = req.Method
		if req.URI != "" {
			// A recipe-driven generator (wsesslog/wsesspage) names its own
			// URI; a fixed-burst one (wsess) leaves this blank and defers
			// to whatever URI generator is registered on event.CallNew,
			// the same composition every single-call workload relies on.
			call.URI = req.URI
		}
		opts := st.sr.rt.Engine.Opts
		call.ProtocolLine, _ = conn.NewRequestLine(opts.HTTPMajor, opts.HTTPMinor, opts.KeepAlive)
		if !opts.SuppressHostHeader {
			call.HostHeader = "Host: " + st.sr.hostHdr
		}
		for _, h := range req.ExtraHeaders {
			call.AddExtraHeader(h)
		}
		if st.sr.rt.SessionCookies && st.cookie != "" {
			call.AddExtraHeader("Cookie: " + st.cookie)
		}
		call.Body = req.Body
		call.Extra(sessionExtraKey, func() any { return st })

		st.sr.rt.Engine.CoreSend(st.c, call)
	}
}

func (st *sessionState) onCallDestroyed(call *conn.Call) {
	if call.Connection != st.c {
		// This call belonged to a connection st has already replaced
		// (a retried-after-failure reconnect); its destruction carries
		// no information about the session's current progress.
		return
	}

	// --failure-status (session.c's call_done): a reply matching this
	// status fails the session, same as a dropped connection, unless
	// --retry-on-failure says to reissue the same call instead.
	if !st.sess.Failed && st.sr.rt.FailureStatus > 0 && call.Reply.Status == st.sr.rt.FailureStatus {
		if st.sr.rt.RetryOnFailure {
			st.reissue(call)
			return
		}
		st.fail()
		return
	}

	st.totalDestroyed++
	st.destroyedInBurst++

	if st.sess.Failed {
		return
	}
	if st.totalDestroyed >= st.totalCalls {
		st.finish()
		return
	}
	burst := st.bursts[st.burstIdx]
	if st.destroyedInBurst < len(burst.Requests) {
		st.issueBurst()
		return
	}
	st.nextBurst(burst.ThinkTime)
}

// reissue resends the same request that just failed --failure-status's
// check, on the same connection, mirroring session.c's
// session_issue_call: the session's call count doesn't advance, the
// request is simply retried verbatim.
func (st *sessionState) reissue(call *conn.Call) {
	nc := st.sr.rt.Engine.CallNew()
	nc.Method = call.Method
	nc.URI = call.URI
	nc.ProtocolLine = call.ProtocolLine
	nc.HostHeader = call.HostHeader
	for i := 0; i < call.ExtraHeaderCount; i++ {
		nc.AddExtraHeader(call.ExtraHeaders[i])
	}
	nc.Body = call.Body
	nc.Extra(sessionExtraKey, func() any { return st })
	st.sr.rt.Engine.CoreSend(st.c, nc)
}

// onConnFailed handles the connection carrying this session failing
// mid-flight (spec.md §4 Propagation). With --retry-on-failure set and
// the failed connection having delivered at least one reply already, the
// session reconnects and resumes the burst it was in the middle of;
// otherwise the session is marked failed, matching the default (and
// original httperf's) behavior of giving up on the whole session.
func (st *sessionState) onConnFailed(c *conn.Connection) {
	if st.sess.Failed || c != st.c {
		return
	}

	if st.sr.rt.RetryOnFailure && c.RepliesSeen() > 0 {
		nc, err := st.sr.rt.Engine.ConnNew(st.sr.host, st.sr.port, st.sr.hostHdr)
		if err == nil {
			st.c = nc
			nc.Extra(sessionExtraKey, func() any { return st })
			st.sentInBurst = 0
			st.destroyedInBurst = 0
			st.issueBurst()
			return
		}
	}
	st.fail()
}

func (st *sessionState) nextBurst(thinkTime time.Duration) {
	st.burstIdx++
	st.sentInBurst = 0
	st.destroyedInBurst = 0
	if st.burstIdx >= len(st.bursts) {
		return
	}
	if thinkTime <= 0 {
		st.issueBurst()
		return
	}
	st.sr.rt.Engine.Clock.Schedule(func(*clock.Timer, any) { st.issueBurst() }, st, thinkTime)
}

func (st *sessionState) fail() {
	if st.sess.Failed {
		return
	}
	st.sess.Failed = true
	st.finish()
}

func (st *sessionState) finish() {
	if st.c != nil {
		st.sr.rt.Engine.CoreClose(st.c)
	}
	st.sr.rt.Engine.SessRelease(st.sess)
	if st.onDone != nil {
		st.onDone(st)
	}
}
