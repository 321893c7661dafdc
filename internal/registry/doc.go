// Data model reference (see SPEC_FULL.md §3 for the authoritative copy):
//
// Connection represents one TCP (or TLS) socket to one (server, port):
// destination host/port, optional Host-header override, source address
// and bound ephemeral port, socket descriptor, engine state, a FIFO of
// Calls awaiting send (sendq) and awaiting reply (recvq), a single
// pending watchdog timer, and parser scratch state. Destroyed when its
// reference count drops to zero after close.
//
// Call is one request/reply pair: a monotonic id, a non-owning
// back-reference to its Connection, next-pointers for both queues, the
// request as a small fixed vector of byte slices, reply metadata, and a
// per-call timeout deadline. Its reference is incremented when enqueued
// on sendq, passed (not re-counted) to recvq after send completes, and
// decremented when the reply is fully received or the connection fails.
//
// Session optionally groups calls for multi-call workloads: a "failed"
// flag plus collaborator-private data. Decremented when all its calls
// complete or on first fatal error.
//
// Invariants: a Call appears in at most one queue on a single Connection
// at a time; recvq order equals send-completion order and the parser
// always acts on recvq's head; a Connection's state progresses
// monotonically through the engine phases until Closing, from which it
// can only reach Free; at most one watchdog timer exists per Connection;
// the ephemeral port bit is set iff not currently bound; reference counts
// are non-negative and never resurrected.
package registry
