package workload

import (
	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/rate"
)

// ConnRate creates connections at the configured rate (or sequentially,
// one per CONN_DESTROYED, if unconfigured) until NumConns have been
// created, and signals Runtime.Done once that many have also been
// destroyed. Grounded on gen/conn_rate.c: make_conn/destroyed become
// onTick/onDestroyed, and rate_generator_start(&rg, EV_CONN_DESTROYED)
// becomes rt.NewRate(...).Start(event.ConnDestroyed).
type ConnRate struct {
	NumConns int
	Host     string
	Port     int
	HostHeader string

	rt        *Runtime
	rg        *rate.Generator
	generated int
	destroyed int
}

func (g *ConnRate) Name() string { return "creates connections at a fixed rate" }

func (g *ConnRate) Init(rt *Runtime) error {
	g.rt = rt
	rt.Bus.Register(event.ConnDestroyed, func(event.Kind, any, any, any) {
		g.destroyed++
		if g.destroyed >= g.NumConns && rt.Done != nil {
			rt.Done()
		}
	}, nil)
	return nil
}

func (g *ConnRate) Start() {
	g.rg = g.rt.NewRate(g.onTick)
	g.rg.Start(event.ConnDestroyed)
}

func (g *ConnRate) Stop() {
	if g.rg != nil {
		g.rg.Stop()
	}
}

func (g *ConnRate) onTick() bool {
	if g.generated >= g.NumConns {
		return true
	}
	g.generated++
	if _, err := g.rt.Engine.ConnNew(g.Host, g.Port, g.HostHeader); err != nil {
		g.rt.Engine.Log.WithError(err).Warn("workload: conn_rate: ConnNew failed")
	}
	return false
}
