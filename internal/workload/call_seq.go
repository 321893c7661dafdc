package workload

import (
	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
)

const callSeqExtraKey = "workload.callSeq"

// callSeqPrivate is the per-connection bookkeeping call_seq.c keeps via
// object_expand(OBJ_CONN, ...); here it lives in Connection's typed
// extension slot instead of a byte-offset cast.
type callSeqPrivate struct {
	numCalls      int
	numCompleted  int
	numDestroyed  int
}

// CallSeq issues Method/Method-less calls over a connection, pipelining
// up to BurstLen of them at a time until NumCalls have been sent, then
// closes the connection once every issued call has been destroyed.
// Grounded on gen/call_seq.c: issue_calls/conn_connected/call_done/
// call_destroyed, unchanged in shape.
type CallSeq struct {
	NumCalls   int
	BurstLen   int
	Method     string
	HostHeader string

	rt *Runtime
}

func (g *CallSeq) Name() string { return "performs a sequence of calls on a connection" }

func (g *CallSeq) Init(rt *Runtime) error {
	g.rt = rt
	if g.BurstLen <= 0 {
		g.BurstLen = 1
	}
	if g.Method == "" {
		g.Method = "GET"
	}

	rt.Bus.Register(event.ConnConnected, func(_ event.Kind, subject any, _, _ any) {
		g.issueCalls(subject.(*conn.Connection))
	}, nil)
	rt.Bus.Register(event.CallRecvStop, func(_ event.Kind, subject any, _, _ any) {
		call := subject.(*conn.Call)
		priv := g.privateOf(call.Connection)
		priv.numCompleted++
	}, nil)
	rt.Bus.Register(event.CallDestroyed, func(_ event.Kind, subject any, _, _ any) {
		g.callDestroyed(subject.(*conn.Call))
	}, nil)
	return nil
}

func (g *CallSeq) Start() {}
func (g *CallSeq) Stop()  {}

func (g *CallSeq) privateOf(c *conn.Connection) *callSeqPrivate {
	return c.Extra(callSeqExtraKey, func() any { return &callSeqPrivate{} }).(*callSeqPrivate)
}

func (g *CallSeq) issueCalls(c *conn.Connection) {
	priv := g.privateOf(c)
	priv.numCompleted = 0
	priv.numDestroyed = 0

	for i := 0; i < g.BurstLen && priv.numCalls < g.NumCalls; i++ {
		priv.numCalls++

		call := g.rt.Engine.CallNew()
		call.Method = g.Method
		opts := g.rt.Engine.Opts
		call.ProtocolLine, _ = conn.NewRequestLine(opts.HTTPMajor, opts.HTTPMinor, opts.KeepAlive)
		if !opts.SuppressHostHeader {
			call.HostHeader = "Host: " + g.HostHeader
		}
		g.rt.Engine.CoreSend(c, call)
	}
}

func (g *CallSeq) callDestroyed(call *conn.Call) {
	c := call.Connection
	priv := g.privateOf(c)
	priv.numDestroyed++

	minBurst := g.BurstLen
	if g.NumCalls < minBurst {
		minBurst = g.NumCalls
	}
	if priv.numDestroyed < minBurst {
		return
	}

	if priv.numCompleted == priv.numDestroyed && priv.numCalls < g.NumCalls {
		g.issueCalls(c)
	} else {
		g.rt.Engine.CoreClose(c)
	}
}
