package workload

import (
	"bytes"
	"fmt"
	"os"

	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
)

// URIWlog replays a pre-recorded list of URIs from a NUL-separated log
// file, looping at EOF when Loop is set (spec.md §6 URI-list file
// format). Grounded on gen/uri_wlog.c's init_wlog/set_uri: the original
// mmaps the file and walks NUL-delimited runs; this keeps the same
// "read once, scan forward, wrap on exhaustion" shape over an in-memory
// byte slice rather than a live mmap, since a Go process has no need for
// the original's avoid-a-copy optimization.
type URIWlog struct {
	File string
	Loop bool

	// Stop_, if set, is called once when a non-looping log is exhausted so
	// the owning run can wind down (core_exit in the original).
	Stop_ func()

	data []byte
	pos  int
}

func (g *URIWlog) Name() string { return "Generates URIs based on a predetermined list" }

func (g *URIWlog) Init(rt *Runtime) error {
	data, err := os.ReadFile(g.File)
	if err != nil {
		return fmt.Errorf("workload: uri_wlog: open %s: %w", g.File, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("workload: uri_wlog: %s is empty", g.File)
	}
	g.data = data

	rt.Bus.Register(event.CallNew, func(_ event.Kind, subject any, _, _ any) {
		g.setURI(subject.(*conn.Call))
	}, nil)
	return nil
}

func (g *URIWlog) setURI(call *conn.Call) {
	didWrap := false
	for {
		if g.pos >= len(g.data) {
			if didWrap {
				panic(fmt.Sprintf("workload: uri_wlog: %s does not contain any valid URIs", g.File))
			}
			didWrap = true
			g.pos = 0
			if !g.Loop && g.Stop_ != nil {
				g.Stop_()
			}
		}
		rest := g.data[g.pos:]
		end := bytes.IndexByte(rest, 0)
		if end < 0 {
			end = len(rest)
		}
		uri := rest[:end]
		g.pos += end + 1
		if len(uri) > 0 {
			call.URI = string(uri)
			return
		}
	}
}

func (g *URIWlog) Start() {}
func (g *URIWlog) Stop()  {}
