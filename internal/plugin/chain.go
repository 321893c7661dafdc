// Package plugin composes the workload generators and stat collectors
// spec.md §4.9 describes only as an interface contract ("Each generator
// exposes {name, init, start, stop}. Each collector exposes {name, init,
// start, stop, dump}.") into two ordered chains that the binary assembles
// at startup from the CLI-selected set.
//
// Grounded on the teacher's core/middleware.Pipeline: an ordered slice
// built by successive Use calls, walked in registration order on
// Execute — repurposed here from per-request middleware dispatch to
// once-per-run generator/collector lifecycle chaining. Init runs in
// registration order (a later generator may depend on an earlier one
// having registered its bus handlers first, e.g. a URI generator filling
// in whatever a session generator's Request.URI left blank); Stop runs in
// reverse order, the same unwind discipline deferred cleanup uses
// elsewhere in Go, and keeps running the remaining Stops even if one
// panics so a single misbehaving plug-in cannot strand the others'
// sockets or files open.
package plugin

import (
	"fmt"

	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/workload"
)

// Collector is the Go analogue of httperf's Stat_Collector: a named
// plug-in that attaches to the event bus and optionally renders a report.
// Dump is intentionally not part of this interface — each collector's
// dump needs different arguments (Basic needs the run's time window and
// CPU usage, Prometheus needs nothing, PrintReply needs nothing) — so
// cmd/httperfgo calls the concrete type's Dump directly once the run ends.
type Collector interface {
	Name() string
	Init(bus *event.Bus) error
	Start()
	Stop()
}

// GeneratorChain holds the run's selected workload.Generator plug-ins in
// registration order.
type GeneratorChain struct {
	gens []workload.Generator
}

// Use appends g to the chain, mirroring Pipeline.Use, and returns the
// chain so calls can be composed fluently at wiring time.
func (c *GeneratorChain) Use(g workload.Generator) *GeneratorChain {
	c.gens = append(c.gens, g)
	return c
}

// Generators exposes the chained plug-ins in registration order, e.g. for
// a --verbose startup log naming each active generator.
func (c *GeneratorChain) Generators() []workload.Generator {
	return c.gens
}

// Init runs every generator's Init in registration order, stopping at the
// first error (a generator's Init failure is a configuration error per
// §7, not something later generators should paper over).
func (c *GeneratorChain) Init(rt *workload.Runtime) error {
	for _, g := range c.gens {
		if err := g.Init(rt); err != nil {
			return fmt.Errorf("plugin: generator %q: %w", g.Name(), err)
		}
	}
	return nil
}

// Start begins every generator's ticking in registration order.
func (c *GeneratorChain) Start() {
	for _, g := range c.gens {
		g.Start()
	}
}

// Stop tears down every generator in reverse registration order,
// recovering and continuing past a panic in any single Stop so the rest
// still run (spec.md §4.9: "Stop is always called", even in a messy
// shutdown).
func (c *GeneratorChain) Stop() {
	for i := len(c.gens) - 1; i >= 0; i-- {
		stopOne(c.gens[i])
	}
}

func stopOne(g workload.Generator) {
	defer func() { recover() }()
	g.Stop()
}

// CollectorChain holds the run's selected stat Collector plug-ins in
// registration order. Structurally identical to GeneratorChain; kept as a
// separate type rather than a shared generic so Collector and
// workload.Generator can evolve independently (Collector gains Dump-style
// extensions a pure load generator never needs).
type CollectorChain struct {
	cols []Collector
}

func (c *CollectorChain) Use(col Collector) *CollectorChain {
	c.cols = append(c.cols, col)
	return c
}

func (c *CollectorChain) Collectors() []Collector {
	return c.cols
}

func (c *CollectorChain) Init(bus *event.Bus) error {
	for _, col := range c.cols {
		if err := col.Init(bus); err != nil {
			return fmt.Errorf("plugin: collector %q: %w", col.Name(), err)
		}
	}
	return nil
}

func (c *CollectorChain) Start() {
	for _, col := range c.cols {
		col.Start()
	}
}

func (c *CollectorChain) Stop() {
	for i := len(c.cols) - 1; i >= 0; i-- {
		stopOneCollector(c.cols[i])
	}
}

func stopOneCollector(col Collector) {
	defer func() { recover() }()
	col.Stop()
}
