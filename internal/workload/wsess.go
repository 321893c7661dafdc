package workload

import (
	"time"

	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/rate"
)

// WsessConfig mirrors param.wsess from httperf.c: --wsess=N,N,T parses as
// (num_sessions, num_calls, think_time).
type WsessConfig struct {
	NumSessions int
	NumCalls    int
	ThinkTime   time.Duration

	// BurstLen mirrors the separate --burst-length flag (default 1): how
	// many calls of each session are pipelined together before waiting
	// for the first reply.
	BurstLen int

	Host, HostHeader string
	Port             int
}

// Wsess creates sessions at the configured rate, each issuing NumCalls
// requests in bursts of BurstLen with ThinkTime between bursts. Grounded
// on gen/wsess.c: sess_create/issue_calls/call_destroyed/sess_destroyed,
// adapted onto sessionRuntime's single-connection-per-session model (see
// session.go) and internal/rate.Generator in place of the original's
// Rate_Generator+rate_generator_start(&rg, EV_SESS_DESTROYED).
type Wsess struct {
	Cfg WsessConfig

	sr        *sessionRuntime
	rate      *rate.Generator
	generated int
	destroyed int
	rt        *Runtime
}

func (g *Wsess) Name() string { return "creates session workload" }

func (g *Wsess) Init(rt *Runtime) error {
	g.rt = rt
	g.sr = newSessionRuntime(rt, g.Cfg.Host, g.Cfg.Port, g.Cfg.HostHeader)
	registerSessionHandlers(rt.Bus)

	rt.Bus.Register(event.SessDestroyed, func(event.Kind, any, any, any) {
		g.destroyed++
		if g.destroyed >= g.Cfg.NumSessions && rt.Done != nil {
			rt.Done()
		}
	}, nil)
	return nil
}

func (g *Wsess) burstPlan() []Burst {
	burstLen := g.Cfg.BurstLen
	if burstLen <= 0 {
		burstLen = 1
	}
	var bursts []Burst
	remaining := g.Cfg.NumCalls
	for remaining > 0 {
		n := burstLen
		if n > remaining {
			n = remaining
		}
		reqs := make([]Request, n)
		for i := range reqs {
			reqs[i] = Request{Method: "GET"}
		}
		bursts = append(bursts, Burst{Requests: reqs, ThinkTime: g.Cfg.ThinkTime})
		remaining -= n
	}
	return bursts
}

func (g *Wsess) Start() {
	g.rate = g.rt.NewRate(func() bool {
		if g.generated >= g.Cfg.NumSessions {
			return true
		}
		g.generated++
		g.sr.start(g.burstPlan(), nil)
		return g.generated >= g.Cfg.NumSessions
	})
	g.rate.Start(event.SessDestroyed)
}

func (g *Wsess) Stop() {
	if g.rate != nil {
		g.rate.Stop()
	}
}
