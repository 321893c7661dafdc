package workload

import (
	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
)

// ExtraHeaders stamps a fixed set of "Key: Value" lines (--add-header,
// spec.md §6 protocol group) onto every call as it's allocated, the same
// way URIFixed stamps a URI: one CALL_NEW handler, grounded on
// gen/uri_fixed.c's set_uri hook shape. Lines are pre-validated by
// internal/config before reaching here.
type ExtraHeaders struct {
	Lines []string
}

func (g *ExtraHeaders) Name() string { return "extra request headers" }

func (g *ExtraHeaders) Init(rt *Runtime) error {
	rt.Bus.Register(event.CallNew, func(_ event.Kind, subject any, _, _ any) {
		call := subject.(*conn.Call)
		for _, line := range g.Lines {
			call.AddExtraHeader(line)
		}
	}, nil)
	return nil
}

func (g *ExtraHeaders) Start() {}
func (g *ExtraHeaders) Stop()  {}
