// Package registry implements the object lifecycle infrastructure shared
// by Connections, Calls, and Sessions: reference counting, a process-wide
// free list per kind (to avoid allocator churn under load), and typed
// per-object extension slots so workload generators and stat collectors
// can attach private state.
//
// This mirrors httperf's object.c, generalized with a Go generic Pool
// instead of the original's untyped malloc'd-byte-blob free list indexed
// by Object_Type (Design Notes §9: "free lists as pools... re-implement
// as a typed pool"). Connection, Call, and Session themselves are defined
// in the packages that own their domain semantics (internal/conn,
// internal/workload); this package only supplies the embeddable
// RefCounted base and the generic Pool that drives New/IncRef/DecRef and
// the corresponding NEW/DESTROYED event-bus signals.
package registry

import (
	"fmt"

	"github.com/searchktools/httperfgo/internal/event"
)

// RefCounted is embedded in every pooled entity (Connection, Call,
// Session). It carries the reference count and the lazily-allocated
// extension-slot map that replaces object_expand's byte-offset trick with
// a plain map keyed by a caller-chosen string (SPEC_FULL.md §3).
type RefCounted struct {
	refCount int32
	extra    map[string]any
}

// RefCount returns the current reference count. Zero is terminal: a
// RefCounted whose count has reached zero is never resurrected (§3
// invariant).
func (r *RefCounted) RefCount() int32 { return r.refCount }

// Extra returns the extension-slot value for key, constructing it with
// newFn on first access. Each generator/collector should use a
// package-private, collision-free key (e.g. its own package path) exactly
// once per object kind.
func (r *RefCounted) Extra(key string, newFn func() any) any {
	if r.extra == nil {
		r.extra = make(map[string]any, 2)
	}
	v, ok := r.extra[key]
	if !ok {
		v = newFn()
		r.extra[key] = v
	}
	return v
}

func (r *RefCounted) reset() {
	r.refCount = 0
	r.extra = nil
}

// Stats reports free-list hit/miss counters, the Go analogue of the
// teacher's pools.ConnectionPool.Stats / pools.SmartPool.Stats.
type Stats struct {
	News    uint64 // objects constructed via New (free-list hit or fresh alloc)
	Reused  uint64 // of those, how many came from the free list
	Destroy uint64 // objects that reached ref count zero
}

func (s Stats) HitRate() float64 {
	if s.News == 0 {
		return 0
	}
	return float64(s.Reused) / float64(s.News)
}

// Pool is a typed, reference-counted free-list registry for objects of
// type *T. New constructions are served from the free list when possible;
// DecRef returns an object to the free list once its count hits zero,
// after running deinit and signalling destroyEvt.
type Pool[T any] struct {
	bus        *event.Bus
	newEvt     event.Kind
	destroyEvt event.Kind

	alloc  func() *T
	init   func(*T)
	deinit func(*T)
	refOf  func(*T) *RefCounted

	free  []*T
	stats Stats
}

// NewPool constructs a Pool. refOf must return the same *RefCounted
// embedded in obj every time it is called with that obj (typically
// `func(c *Connection) *registry.RefCounted { return &c.RefCounted }`).
func NewPool[T any](bus *event.Bus, newEvt, destroyEvt event.Kind, alloc func() *T, init, deinit func(*T), refOf func(*T) *RefCounted) *Pool[T] {
	return &Pool[T]{
		bus:        bus,
		newEvt:     newEvt,
		destroyEvt: destroyEvt,
		alloc:      alloc,
		init:       init,
		deinit:     deinit,
		refOf:      refOf,
	}
}

// New returns a zero-initialized, reference-count-1 object of type T,
// reused from the free list when one is available, and signals newEvt.
func (p *Pool[T]) New() *T {
	var obj *T
	p.stats.News++
	if n := len(p.free); n > 0 {
		obj = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.stats.Reused++
	} else {
		obj = p.alloc()
	}
	p.refOf(obj).refCount = 1
	if p.init != nil {
		p.init(obj)
	}
	p.bus.Signal(p.newEvt, obj, nil)
	return obj
}

// IncRef increments obj's reference count (object_inc_ref).
func (p *Pool[T]) IncRef(obj *T) {
	p.refOf(obj).refCount++
}

// DecRef decrements obj's reference count. At zero it runs deinit, signals
// destroyEvt, and returns obj to the free list. Decrementing an
// already-zero count is a programmer error and panics rather than
// resurrecting the count (§3 invariant: "never resurrected").
func (p *Pool[T]) DecRef(obj *T) {
	r := p.refOf(obj)
	if r.refCount <= 0 {
		panic(fmt.Sprintf("registry: DecRef on object with non-positive ref count (%d)", r.refCount))
	}
	r.refCount--
	if r.refCount == 0 {
		if p.deinit != nil {
			p.deinit(obj)
		}
		p.bus.Signal(p.destroyEvt, obj, nil)
		r.reset()
		p.stats.Destroy++
		p.free = append(p.free, obj)
	}
}

// Stats returns a snapshot of the pool's hit/miss/destroy counters.
func (p *Pool[T]) Stats() Stats { return p.stats }

// FreeListLen reports how many retired objects are currently pooled,
// mostly useful in tests asserting the free list actually gets reused.
func (p *Pool[T]) FreeListLen() int { return len(p.free) }
