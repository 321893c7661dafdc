// Package event implements the fixed-enumeration event bus that couples
// workload generators and stat collectors to the connection engine and
// rate generator, mirroring httperf's event.c/event.h.
//
// Handlers register per Kind and run synchronously, in registration order,
// when that Kind is signalled. A handler must not re-enter Signal for the
// Kind being signalled (the original enforces this only by convention;
// this port panics on it — see Bus.Signal).
package event

import "fmt"

// Kind enumerates every event the core can signal. The ordering matches
// httperf's Event_Type enum so the lifecycle comments in §5 read the same
// way against either source.
type Kind int

const (
	PerfSample Kind = iota

	HostnameLookupStart
	HostnameLookupStop

	SessNew
	SessFailed
	SessDestroyed

	ConnNew
	ConnConnecting
	ConnConnected
	ConnClose
	ConnDestroyed
	ConnFailed
	ConnTimeout

	CallNew
	CallIssue
	CallSendStart
	CallSendRawData
	CallSendStop
	CallRecvStart
	CallRecvHdr
	CallRecvRawData
	CallRecvData
	CallRecvFooter
	CallRecvStop
	CallDestroyed

	numKinds
)

var kindNames = [numKinds]string{
	"PERF_SAMPLE",
	"HOSTNAME_LOOKUP_START", "HOSTNAME_LOOKUP_STOP",
	"SESS_NEW", "SESS_FAILED", "SESS_DESTROYED",
	"CONN_NEW", "CONN_CONNECTING", "CONN_CONNECTED", "CONN_CLOSE",
	"CONN_DESTROYED", "CONN_FAILED", "CONN_TIMEOUT",
	"CALL_NEW", "CALL_ISSUE", "CALL_SEND_START", "CALL_SEND_RAW_DATA",
	"CALL_SEND_STOP", "CALL_RECV_START", "CALL_RECV_HDR",
	"CALL_RECV_RAW_DATA", "CALL_RECV_DATA", "CALL_RECV_FOOTER",
	"CALL_RECV_STOP", "CALL_DESTROYED",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Handler receives the event kind, the subject object it fired on, the
// value the handler registered with, and the value the signaller passed
// at signal time. Subject and the two args are `any` rather than the
// original's Any_Type union (Design Notes §9): callers type-assert to the
// concrete payload documented for each Kind (e.g. CallRecvData carries a
// []byte, ConnFailed carries a conn.FailureKind).
type Handler func(kind Kind, subject any, registerArg, signalArg any)

// maxHandlersPerKind mirrors MAX_NUM_OPS in event.c. It is a soft cap:
// registering past it is almost certainly a wiring bug (every generator
// and collector registers a handful of handlers at init time, never in a
// loop), so Bus.Register panics rather than silently growing without
// bound — matching the original's choice to treat it as a fatal
// configuration error, not a recoverable one.
const maxHandlersPerKind = 4

type closure struct {
	handler Handler
	arg     any
}

// Bus dispatches events to registered handlers. The zero value is usable.
type Bus struct {
	actions [numKinds][]closure
	firing  [numKinds]bool
}

// New returns a ready-to-use Bus with room for maxHandlersPerKind handlers
// per kind preallocated, avoiding growth during the run.
func New() *Bus {
	b := &Bus{}
	for k := range b.actions {
		b.actions[k] = make([]closure, 0, maxHandlersPerKind)
	}
	return b
}

// Register adds handler, bound with arg, to the list invoked when kind is
// signalled. Handlers fire in registration order.
func (b *Bus) Register(kind Kind, handler Handler, arg any) {
	if int(kind) < 0 || int(kind) >= int(numKinds) {
		panic(fmt.Sprintf("event: register: invalid kind %v", kind))
	}
	if len(b.actions[kind]) >= maxHandlersPerKind {
		panic(fmt.Sprintf("event: register: too many handlers for %v (max %d)", kind, maxHandlersPerKind))
	}
	b.actions[kind] = append(b.actions[kind], closure{handler: handler, arg: arg})
}

// Signal invokes every handler registered for kind, in registration order,
// passing subject and arg through. Handlers must not call Signal again for
// the same kind while already inside a Signal(kind, ...) call — Signal
// detects and panics on this re-entrancy rather than corrupting dispatch
// order or recursing unboundedly.
func (b *Bus) Signal(kind Kind, subject any, arg any) {
	if int(kind) < 0 || int(kind) >= int(numKinds) {
		panic(fmt.Sprintf("event: signal: invalid kind %v", kind))
	}
	if b.firing[kind] {
		panic(fmt.Sprintf("event: signal: re-entrant signal of %v from within its own handler chain", kind))
	}
	b.firing[kind] = true
	defer func() { b.firing[kind] = false }()

	for _, c := range b.actions[kind] {
		c.handler(kind, subject, c.arg, arg)
	}
}

// HandlerCount reports how many handlers are registered for kind, mostly
// useful in tests.
func (b *Bus) HandlerCount(kind Kind) int {
	return len(b.actions[kind])
}
