// Package rate implements the Rate Generator from spec.md §4.8, grounded
// on httperf's gen/rate.c and gen/conn_rate.c: a reactor-driven scheduler
// that fires a tick callback (create a connection, session, or call)
// according to a deterministic, uniform, or exponential inter-arrival
// distribution, or sequentially off a completion event when no rate is
// configured.
package rate

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/event"
)

// Distribution selects the inter-arrival time formula (§4.8).
type Distribution int

const (
	Deterministic Distribution = iota
	Uniform
	Exponential
)

func (d Distribution) String() string {
	switch d {
	case Deterministic:
		return "deterministic"
	case Uniform:
		return "uniform"
	case Exponential:
		return "exponential"
	default:
		return fmt.Sprintf("Distribution(%d)", int(d))
	}
}

// Info describes the configured rate, parsed from the --rate/--period
// command-line flags. RateParam <= 0 selects sequential mode (§4.8:
// "If the configured rate is zero, the generator instead runs
// sequentially").
type Info struct {
	Dist      Distribution
	RateParam float64 // requests/sec; <= 0 means sequential mode
	MeanIAT   time.Duration
	MinIAT    time.Duration
	MaxIAT    time.Duration
}

// TickFunc performs one tick's worth of work (e.g. conn_new + core_connect)
// and reports whether the generator is done: a negative-like "stop" signal
// matching the original's "tick() < 0 means done" convention, expressed as
// a bool instead of a sentinel int.
type TickFunc func() (done bool)

// Generator drives TickFunc on the schedule described by Info. The random
// source is seeded from clientID so that multiple cooperating load
// generator instances (the original's --client=ID/N) do not produce
// identical inter-arrival streams even when given the same Info.
//
// Grounded on Rate_Generator in rate.h/rate.c: xsubi becomes a
// *rand.Rand, rg->timer becomes a clock.Handle, and the next_time/done
// bookkeeping is carried over unchanged.
type Generator struct {
	clk  *clock.Clock
	bus  *event.Bus
	info Info
	tick TickFunc

	rng      *rand.Rand
	start    time.Time
	nextTime time.Time
	timer    clock.Handle
	done     bool
}

// New creates a Generator. clientID seeds the PRNG the same way
// rate_generator_start factors param.client.id into xsubi.
func New(clk *clock.Clock, bus *event.Bus, info Info, clientID int, tick TickFunc) *Generator {
	seed := int64(0x1234) ^ int64(clientID)<<8 ^ ^int64(clientID)
	return &Generator{
		clk:  clk,
		bus:  bus,
		info: info,
		tick: tick,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Start begins ticking. completionEvt is the event signalled once per
// completed unit of work (e.g. event.ConnDestroyed) and is only consulted
// in sequential mode (RateParam <= 0), mirroring
// rate_generator_start(&rg, EV_CONN_DESTROYED).
func (g *Generator) Start(completionEvt event.Kind) {
	g.start = g.clk.Now()

	if g.info.RateParam > 0 {
		delay := g.nextInterarrival()
		g.nextTime = g.start.Add(delay)
		g.timer = g.clk.Schedule(g.onTick, g, delay)
	} else {
		g.bus.Register(completionEvt, func(_ event.Kind, _ any, _, _ any) {
			g.onCompletion()
		}, nil)
	}

	g.done = g.tick()
}

// Stop cancels any pending timer and marks the generator done, mirroring
// rate_generator_stop.
func (g *Generator) Stop() {
	if g.timer != nil {
		_ = g.clk.Cancel(g.timer)
		g.timer = nil
	}
	g.done = true
}

// Done reports whether the tick callback has signalled completion.
func (g *Generator) Done() bool { return g.done }

func (g *Generator) onCompletion() {
	if g.done {
		return
	}
	g.done = g.tick()
}

// onTick is the timer callback. It catches up on any ticks that fell
// behind schedule (the reactor was busy with I/O) before re-arming for
// the next one, preserving the original's "schedule tracks absolute
// deadlines, not periodic offsets" behavior (§4.8).
func (g *Generator) onTick(_ *clock.Timer, _ any) {
	now := g.clk.Now()
	g.timer = nil
	if g.done {
		return
	}

	for now.After(g.nextTime) {
		delay := g.nextInterarrival()
		g.nextTime = g.nextTime.Add(delay)
		g.done = g.tick()
		if g.done {
			return
		}
	}

	remaining := g.nextTime.Sub(now)
	g.timer = g.clk.Schedule(g.onTick, g, remaining)
}

func (g *Generator) nextInterarrival() time.Duration {
	switch g.info.Dist {
	case Uniform:
		lower, upper := g.info.MinIAT, g.info.MaxIAT
		return lower + time.Duration(float64(upper-lower)*g.rng.Float64())
	case Exponential:
		mean := g.info.MeanIAT
		u := g.rng.Float64()
		return time.Duration(-float64(mean) * math.Log(1.0-u))
	default:
		return g.info.MeanIAT
	}
}
