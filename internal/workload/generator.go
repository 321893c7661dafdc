// Package workload implements the concrete load generators from
// SPEC_FULL.md's workload EXPANSION: fixed/logged/working-set URI
// selection for single-call workloads, and fixed-shape or log-driven
// multi-call sessions. Every generator attaches to internal/conn.Engine
// and internal/event.Bus the same way the original's Load_Generator
// struct (init/start/stop) attaches to the core event bus.
package workload

import (
	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/rate"
)

// Generator is the Go analogue of httperf's Load_Generator: a named
// plug-in with three lifecycle hooks, chained together by
// internal/plugin. Stop is always called, even if Init or Start never
// ran a tick — generators must tolerate a no-op Stop.
type Generator interface {
	Name() string
	Init(rt *Runtime) error
	Start()
	Stop()
}

// Runtime bundles the collaborators a generator needs: the connection
// engine (to open connections and issue calls), the event bus (to hook
// CALL_NEW/CALL_DESTROYED/etc.), and a rate generator factory bound to
// this run's --rate/--period configuration, mirroring how every gen/*.c
// file reaches into the shared `param` global plus rate.h.
type Runtime struct {
	Engine   *conn.Engine
	Bus      *event.Bus
	RateInfo rate.Info
	ClientID int

	// RetryOnFailure mirrors --retry-on-failure (spec.md §6 behavior
	// group, §4 Propagation): a session-based generator whose connection
	// fails after at least one reply reconnects and resumes instead of
	// marking the session failed.
	RetryOnFailure bool

	// SessionCookies mirrors --session-cookies (spec.md §6 behavior
	// group): session-based generators carry forward Set-Cookie values
	// from one reply to the next request within the same session.
	SessionCookies bool

	// FailureStatus mirrors --failure-status (spec.md §6 behavior group):
	// a reply whose status equals this value marks the owning session
	// failed, same as a connection failure, unless RetryOnFailure is set,
	// in which case the call is reissued instead. Zero disables the check.
	FailureStatus int

	// NewRate constructs a rate.Generator bound to RateInfo/ClientID and
	// the engine's clock/bus, so a generator only supplies its tick func.
	NewRate func(tick rate.TickFunc) *rate.Generator

	// Done, if set, is called exactly once by a generator that knows its
	// own completion condition (e.g. every session it created has been
	// destroyed), mirroring core_exit() in the original's gen/*.c files.
	// Nil in contexts (tests) that don't need a run-level stop signal.
	Done func()
}
