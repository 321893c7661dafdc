package conn

import (
	"time"

	"github.com/searchktools/httperfgo/internal/httpparse"
	"github.com/searchktools/httperfgo/internal/registry"
)

// MaxExtraHeaders bounds the fixed extra-header vector on Call, mirroring
// the original's MAX_EXTRA_HEADERS. A workload generator that needs more
// should fold them into the body or issue a second call.
const MaxExtraHeaders = 4

// Call is one request/reply pair in flight on a Connection (spec.md §3).
// The request is kept as a small fixed vector of fields rather than a
// pre-rendered byte slice so the send path can assemble a scatter-gather
// write without reformatting on every retry of a partial write.
type Call struct {
	registry.RefCounted

	ID         uint64
	Connection *Connection // non-owning; see Design Notes §9
	next       *Call       // intrusive sendq/recvq link; see queue.go

	Method       string
	URI          string
	ProtocolLine string // one of the four constants in protocol.go
	HostHeader   string // "" if suppressed (--no-host-hdr)

	ExtraHeaders     [MaxExtraHeaders]string
	ExtraHeaderCount int

	Body []byte

	// Send-path bookkeeping: iovIndex/iovOffset track progress through
	// Iovec() across partial writes.
	iovIndex  int
	iovOffset int

	Reply    httpparse.Reply
	Deadline time.Time // timeout + think_timeout from the moment send completed
}

// AddExtraHeader appends a raw "Key: Value" header line, panicking past
// MaxExtraHeaders the same way event.Bus.Register panics past its cap: a
// generator that needs more is a wiring bug, not a runtime condition to
// recover from.
func (c *Call) AddExtraHeader(line string) {
	if c.ExtraHeaderCount >= MaxExtraHeaders {
		panic("conn: too many extra headers on one call")
	}
	c.ExtraHeaders[c.ExtraHeaderCount] = line
	c.ExtraHeaderCount++
}

// Iovec renders the request as the fixed scatter-gather fragment sequence
// from §4.6: method, space, URI, protocol line, Host header (if any), CRLF,
// extra headers, blank line, body. Each fragment is its own []byte so a
// partial write only needs to reslice the first remaining fragment, never
// re-copy what's already been flushed.
func (c *Call) Iovec() [][]byte {
	frags := make([][]byte, 0, 6+MaxExtraHeaders)
	frags = append(frags,
		[]byte(c.Method), []byte(" "), []byte(c.URI), []byte(" "),
		[]byte(c.ProtocolLine), []byte("\r\n"),
	)
	if c.HostHeader != "" {
		frags = append(frags, []byte(c.HostHeader), []byte("\r\n"))
	}
	for i := 0; i < c.ExtraHeaderCount; i++ {
		frags = append(frags, []byte(c.ExtraHeaders[i]), []byte("\r\n"))
	}
	frags = append(frags, []byte("\r\n"))
	if len(c.Body) > 0 {
		frags = append(frags, c.Body)
	}
	return frags
}

// resetSendProgress rearms Iovec iteration for a fresh send attempt (used
// only when a Call is constructed; once bytes have been written the engine
// tracks progress itself and never calls this again for the same Call).
func (c *Call) resetSendProgress() {
	c.iovIndex = 0
	c.iovOffset = 0
}
