// Package httpparse implements the incremental HTTP/1.0 and HTTP/1.1 reply
// parser described in spec.md §4.7, grounded on httperf's http.c reply state
// machine and restructured as a Go type that consumes successive read
// buffers without blocking or backtracking past what it has already
// returned.
package httpparse

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/searchktools/httperfgo/internal/event"
)

// State names a phase of the reply state machine from spec.md §4.6, limited
// to the phases the parser itself drives (connection-level phases like
// Connecting/Closing live in internal/conn).
type State int

const (
	StatusLine State = iota
	Header
	ReplyContinue
	ReplyData
	ChunkHeader
	ChunkData
	ChunkCRLF
	ReplyFooter
	ReplyDone
)

func (s State) String() string {
	switch s {
	case StatusLine:
		return "StatusLine"
	case Header:
		return "Header"
	case ReplyContinue:
		return "ReplyContinue"
	case ReplyData:
		return "ReplyData"
	case ChunkHeader:
		return "ChunkHeader"
	case ChunkData:
		return "ChunkData"
	case ChunkCRLF:
		return "ChunkCRLF"
	case ReplyFooter:
		return "ReplyFooter"
	case ReplyDone:
		return "ReplyDone"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// maxLineLen is the per-connection header-line scratch capacity (§4.7):
// lines longer than this are silently truncated, not rejected.
const maxLineLen = 1024

// ErrBadStatusLine is returned (never panics, never closes the connection
// by itself) when a status line fails to parse. The caller still receives a
// Reply with Status forced to 599 per §4.7, and decides whether to treat it
// as connection-fatal.
var ErrBadStatusLine = fmt.Errorf("httpparse: malformed status line")

// Reply accumulates the metadata and byte accounting for one in-flight
// reply. A fresh Reply is produced by BeginReply for each request issued on
// a connection, including pipelined ones (§4.6 ReplyDone → StatusLine
// reuse).
type Reply struct {
	Major, Minor int
	Status       int

	HeaderBytes  uint64
	ContentBytes uint64
	FooterBytes  uint64
}

// Parser holds the per-connection scratch buffer and body-framing state
// described in §3 ("parser scratch buffer... parser sub-state for the
// current reply"). One Parser serves every reply on a Connection in
// sequence; BeginReply resets it between replies so pipelined replies on
// the same buffer (S6) parse back-to-back without reallocating.
type Parser struct {
	bus *event.Bus

	state      State
	scratch    [maxLineLen]byte
	scratchLen int

	method string
	Reply  Reply

	hasContentLength bool
	contentLength    int64
	chunkedHeader    bool

	bodyMode      bodyMode
	bodyRemaining int64 // valid when bodyMode == modeContentLength or modeChunked (current chunk)
}

type bodyMode int

const (
	modeNone bodyMode = iota
	modeContentLength
	modeChunked
	modeUntilClose
)

// New returns a Parser that signals header/footer/recv-stop events on bus.
func New(bus *event.Bus) *Parser {
	return &Parser{bus: bus, state: StatusLine}
}

// BeginReply arms the parser for a new reply. method determines the
// HEAD-has-no-body rule in determineBody.
func (p *Parser) BeginReply(method string) {
	p.state = StatusLine
	p.scratchLen = 0
	p.method = method
	p.Reply = Reply{}
	p.hasContentLength = false
	p.contentLength = 0
	p.chunkedHeader = false
	p.bodyMode = modeNone
	p.bodyRemaining = 0
}

// State reports the parser's current phase, used by the connection engine
// to decide what a zero-byte read means (§4.6: completes the reply in
// ReplyData, resets the connection in every other state).
func (p *Parser) State() State { return p.state }

// Process feeds buf to the parser for subject (opaque to httpparse; the
// connection engine passes its *conn.Call through so bus handlers receive
// the right payload). It returns the unconsumed tail of buf — empty unless
// the reply completed mid-buffer, in which case the caller re-invokes
// Process with the tail against the next Call's freshly-begun Reply (S6
// pipelining) — and whether this call completed the reply.
func (p *Parser) Process(subject any, buf []byte) (rest []byte, done bool, err error) {
	p.bus.Signal(event.CallRecvRawData, subject, buf)

	for len(buf) > 0 {
		switch p.state {
		case StatusLine, Header, ReplyContinue, ChunkHeader, ChunkCRLF, ReplyFooter:
			line, consumed, ok := p.takeLine(buf)
			buf = buf[consumed:]
			if !ok {
				return buf, false, nil
			}
			if d, e := p.handleLine(subject, line); e != nil || d {
				return buf, d, e
			}

		case ReplyData:
			n := p.consumeContentBytes(buf)
			if n > 0 {
				p.bus.Signal(event.CallRecvData, subject, buf[:n])
			}
			buf = buf[n:]
			if p.bodyRemaining == 0 && p.bodyMode == modeContentLength {
				p.finish(subject)
				return buf, true, nil
			}

		case ChunkData:
			n := len(buf)
			if int64(n) > p.bodyRemaining {
				n = int(p.bodyRemaining)
			}
			if n > 0 {
				p.bus.Signal(event.CallRecvData, subject, buf[:n])
			}
			p.Reply.ContentBytes += uint64(n)
			p.bodyRemaining -= int64(n)
			buf = buf[n:]
			if p.bodyRemaining == 0 {
				p.state = ChunkCRLF
			}

		case ReplyDone:
			return buf, true, nil
		}
	}
	return buf, p.state == ReplyDone, nil
}

// HandleEOF processes a zero-byte read, the one event Process cannot see
// because it only ever receives buf of length > 0. Per §4.6: in ReplyData
// (content-length or read-until-close body) this completes the reply;
// in any other state it is a connection reset.
func (p *Parser) HandleEOF(subject any) (completed bool, reset bool) {
	if p.state == ReplyData {
		p.finish(subject)
		return true, false
	}
	return false, true
}

func (p *Parser) finish(subject any) {
	p.state = ReplyDone
	p.bus.Signal(event.CallRecvStop, subject, nil)
}

func (p *Parser) consumeContentBytes(buf []byte) int {
	n := len(buf)
	if p.bodyMode == modeContentLength && int64(n) > p.bodyRemaining {
		n = int(p.bodyRemaining)
	}
	p.Reply.ContentBytes += uint64(n)
	if p.bodyMode == modeContentLength {
		p.bodyRemaining -= int64(n)
	}
	return n
}

// handleLine dispatches a just-assembled line (CRLF stripped) according to
// the current state. It returns done=true once the reply has completed.
func (p *Parser) handleLine(subject any, line []byte) (done bool, err error) {
	switch p.state {
	case StatusLine:
		p.Reply.HeaderBytes += uint64(len(line) + 2)
		major, minor, status, perr := parseStatusLine(line)
		if perr != nil {
			p.Reply.Status = 599
			return false, ErrBadStatusLine
		}
		p.Reply.Major, p.Reply.Minor, p.Reply.Status = major, minor, status
		if status >= 100 && status < 200 {
			p.state = ReplyContinue
		} else {
			p.state = Header
		}

	case ReplyContinue:
		// Either the blank line that followed the 100-status (no headers
		// on a Continue interim response), or the next status line.
		if len(line) == 0 {
			p.Reply.HeaderBytes += 2
			return false, nil
		}
		p.Reply.HeaderBytes += uint64(len(line) + 2)
		major, minor, status, perr := parseStatusLine(line)
		if perr != nil {
			p.Reply.Status = 599
			return false, ErrBadStatusLine
		}
		p.Reply.Major, p.Reply.Minor, p.Reply.Status = major, minor, status
		if status >= 100 && status < 200 {
			p.state = ReplyContinue
		} else {
			p.state = Header
		}

	case Header:
		if len(line) == 0 {
			p.Reply.HeaderBytes += 2
			p.determineBody()
			if p.bodyMode == modeNone {
				p.finish(subject)
				return true, nil
			}
			if p.bodyMode == modeChunked {
				p.state = ChunkHeader
			} else {
				p.state = ReplyData
				if p.bodyMode == modeContentLength && p.bodyRemaining == 0 {
					p.finish(subject)
					return true, nil
				}
			}
			return false, nil
		}
		p.Reply.HeaderBytes += uint64(len(line) + 2)
		p.observeHeader(line)
		p.bus.Signal(event.CallRecvHdr, subject, line)

	case ChunkHeader:
		p.Reply.HeaderBytes += uint64(len(line) + 2)
		size, perr := parseChunkSize(line)
		if perr != nil {
			return false, perr
		}
		if size == 0 {
			p.state = ReplyFooter
			return false, nil
		}
		p.bodyRemaining = size
		p.state = ChunkData

	case ChunkCRLF:
		// The CRLF terminating the just-consumed chunk's data. A
		// non-empty line here is tolerated (not fatal) and simply
		// discarded — matches the original decoder's leniency called
		// out in §9's Open Questions for the terminal chunk, extended
		// here to interior chunks for the same reason: never tighten
		// silently past what the original accepts.
		p.Reply.HeaderBytes += uint64(len(line) + 2)
		p.state = ChunkHeader

	case ReplyFooter:
		if len(line) == 0 {
			p.Reply.FooterBytes += 2
			p.finish(subject)
			return true, nil
		}
		p.Reply.FooterBytes += uint64(len(line) + 2)
		p.bus.Signal(event.CallRecvFooter, subject, line)
	}
	return false, nil
}

// determineBody applies the §4.7 body-determination rules once the header
// block's blank line is reached.
func (p *Parser) determineBody() {
	status := p.Reply.Status
	switch {
	case strings.EqualFold(p.method, "HEAD"):
		p.bodyMode = modeNone
	case status == 204 || status == 205 || status == 304:
		p.bodyMode = modeNone
	case status >= 100 && status < 200:
		p.bodyMode = modeNone
	case p.chunkedHeader:
		p.bodyMode = modeChunked
	case p.hasContentLength:
		p.bodyMode = modeContentLength
		p.bodyRemaining = p.contentLength
	default:
		p.bodyMode = modeUntilClose
	}
}

// observeHeader case-normalizes and inspects only the two headers the
// parser itself needs (Content-Length, Transfer-Encoding); every other
// header line is opaque and passed to CALL_RECV_HDR verbatim (§4.7).
func (p *Parser) observeHeader(line []byte) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return
	}
	key := strings.TrimSpace(string(line[:idx]))
	val := strings.TrimSpace(string(line[idx+1:]))

	switch {
	case strings.EqualFold(key, "Content-Length"):
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n >= 0 {
			p.hasContentLength = true
			p.contentLength = n
		}
	case strings.EqualFold(key, "Transfer-Encoding"):
		if strings.EqualFold(strings.TrimSpace(val), "chunked") {
			p.chunkedHeader = true
		}
	}
}

// takeLine assembles one CRLF-terminated line from the connection's
// scratch buffer and the head of buf, returning the (truncated if
// necessary) line with CRLF stripped, the number of bytes of buf consumed,
// and whether a full line was found. A lone trailing '\r' at the end of buf
// is held back rather than folded into scratch, so a CRLF split across two
// reads is still recognized.
func (p *Parser) takeLine(buf []byte) (line []byte, consumed int, ok bool) {
	if idx := bytes.Index(buf, []byte("\r\n")); idx >= 0 {
		line = p.assembleLine(buf[:idx])
		return line, idx + 2, true
	}

	feed := buf
	holdBack := 0
	if len(buf) > 0 && buf[len(buf)-1] == '\r' {
		feed = buf[:len(buf)-1]
		holdBack = 1
	}
	p.appendScratch(feed)
	return nil, len(buf) - holdBack, false
}

func (p *Parser) appendScratch(b []byte) {
	room := maxLineLen - p.scratchLen
	if room <= 0 {
		return // already at capacity; remainder of the line is discarded
	}
	if len(b) > room {
		b = b[:room]
	}
	copy(p.scratch[p.scratchLen:], b)
	p.scratchLen += len(b)
}

func (p *Parser) assembleLine(tail []byte) []byte {
	p.appendScratch(tail)
	line := make([]byte, p.scratchLen)
	copy(line, p.scratch[:p.scratchLen])
	p.scratchLen = 0
	return line
}

func parseStatusLine(line []byte) (major, minor, status int, err error) {
	s := string(line)
	sp1 := strings.IndexByte(s, ' ')
	if sp1 < 0 {
		return 0, 0, 0, ErrBadStatusLine
	}
	proto := s[:sp1]
	rest := strings.TrimLeft(s[sp1+1:], " ")

	sp2 := strings.IndexByte(rest, ' ')
	codeStr := rest
	if sp2 >= 0 {
		codeStr = rest[:sp2]
	}

	if !strings.HasPrefix(proto, "HTTP/") {
		return 0, 0, 0, ErrBadStatusLine
	}
	dot := strings.IndexByte(proto[5:], '.')
	if dot < 0 {
		return 0, 0, 0, ErrBadStatusLine
	}
	major, merr := strconv.Atoi(proto[5 : 5+dot])
	minor, nerr := strconv.Atoi(proto[5+dot+1:])
	status, cerr := strconv.Atoi(codeStr)
	if merr != nil || nerr != nil || cerr != nil || status < 100 || status > 599 {
		return 0, 0, 0, ErrBadStatusLine
	}
	return major, minor, status, nil
}

func parseChunkSize(line []byte) (int64, error) {
	s := string(line)
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 16, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("httpparse: bad chunk size %q: %w", s, err)
	}
	return n, nil
}
