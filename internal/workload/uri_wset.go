package workload

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
)

// URIWset accesses a fixed working set of NumFiles numbered files under a
// URI prefix, biasing toward misses at TargetMissRate so repeated runs
// exercise a predictable fraction of "cold" files. Grounded on
// gen/uri_wset.c's set_uri: the original advances file_num by
// num_clients whenever an accumulated miss_prob crosses 1.0, mimicking
// several cooperating clients scanning disjoint slices of the same
// working set; it renders the URI backward from a fixed-size buffer
// (".html" suffix first, zero-padded digits, then the prefix) purely as
// a C stack-buffer optimization this port has no reason to keep, so
// fmt.Sprintf builds the same string forward.
type URIWset struct {
	URIPrefix       string
	NumFiles        int
	TargetMissRate  float64
	NumClients      int
	ClientID        int

	missProb float64
	fileNum  int
}

func (g *URIWset) Name() string {
	return "Generates URIs accessing a working-set at a given rate"
}

func (g *URIWset) Init(rt *Runtime) error {
	if g.NumFiles <= 0 {
		return fmt.Errorf("workload: uri_wset: num_files must be positive")
	}
	g.URIPrefix = strings.TrimSuffix(g.URIPrefix, "/")
	g.missProb = rand.Float64()
	g.fileNum = g.ClientID
	if g.NumClients <= 0 {
		g.NumClients = 1
	}

	rt.Bus.Register(event.CallNew, func(_ event.Kind, subject any, _, _ any) {
		g.setURI(subject.(*conn.Call))
	}, nil)
	return nil
}

func (g *URIWset) setURI(call *conn.Call) {
	g.missProb += g.TargetMissRate
	if g.missProb >= 1.0 {
		g.missProb -= 1.0
		g.fileNum += g.NumClients
		if g.fileNum >= g.NumFiles {
			g.fileNum -= g.NumFiles
		}
	}

	digits := 1
	for n := g.NumFiles - 1; n >= 10; n /= 10 {
		digits++
	}
	call.URI = fmt.Sprintf("%s/%0*d.html", g.URIPrefix, digits, g.fileNum)
}

func (g *URIWset) Start() {}
func (g *URIWset) Stop()  {}
