package workload

import (
	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
)

// URIFixed issues every call against a single fixed URI. Grounded on
// gen/uri_fixed.c's set_uri: a CALL_NEW handler that stamps the URI onto
// every call as it's allocated, before the caller fills in anything else.
type URIFixed struct {
	URI string
}

func (g *URIFixed) Name() string { return "fixed url" }

func (g *URIFixed) Init(rt *Runtime) error {
	rt.Bus.Register(event.CallNew, func(_ event.Kind, subject any, _, _ any) {
		subject.(*conn.Call).URI = g.URI
	}, nil)
	return nil
}

func (g *URIFixed) Start() {}
func (g *URIFixed) Stop()  {}
