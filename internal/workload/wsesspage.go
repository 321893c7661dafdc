package workload

import (
	"bytes"
	"time"

	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/rate"
)

// WsesspageConfig mirrors param.wsesspage: --wsesspage=N,N,T parses as
// (num_sessions, num_reqs, think_time), where num_reqs bounds how many
// embedded-object URIs are fetched per page.
type WsesspageConfig struct {
	NumSessions int
	NumReqs     int
	ThinkTime   time.Duration

	URIPrefix        string // fetched as-is for the first page of every session
	Host, HostHeader string
	Port             int
}

// Wsesspage fetches a page, scrapes its HTML body for embedded-object
// URIs (src="..."/href="..."/data="..."), and fetches up to NumReqs of
// them as one burst; a session fetches that single page and its embedded
// objects only — the original's comment on
// gen/wsesspage.c notes this "is NOT a high performance workload
// generator", which is why it is the one generator in this package that
// opts into capturing reply bytes via event.CallRecvData rather than
// relying solely on the wire-byte counters every other call uses.
//
// This is a deliberately simplified HTML scan (a regex-free substring
// scrape for the src=, href= and data= attributes) rather than the
// original's character-by-character tag/quote state machine — sufficient
// to drive a believable embedded-object burst without reimplementing an
// HTML tokenizer, and documented as a scope simplification in DESIGN.md.
type Wsesspage struct {
	Cfg WsesspageConfig

	sr        *sessionRuntime
	rate      *rate.Generator
	generated int
	destroyed int
	rt        *Runtime
}

func (g *Wsesspage) Name() string {
	return "creates session workload based on parsed HTML pages"
}

func (g *Wsesspage) Init(rt *Runtime) error {
	g.rt = rt
	g.sr = newSessionRuntime(rt, g.Cfg.Host, g.Cfg.Port, g.Cfg.HostHeader)
	registerSessionHandlers(rt.Bus)

	rt.Bus.Register(event.CallRecvData, func(_ event.Kind, subject any, _, arg any) {
		call := subject.(*conn.Call)
		st := callSession(call)
		if st == nil || st.burstIdx != 0 {
			return // only the initial page fetch is scraped, not embedded-object replies
		}
		page, ok := st.sess.Extra(pageScrapeKey, func() any { return &pageScrape{} }).(*pageScrape)
		if !ok {
			return
		}
		page.buf = append(page.buf, arg.([]byte)...)
	}, nil)

	rt.Bus.Register(event.SessDestroyed, func(event.Kind, any, any, any) {
		g.destroyed++
		if g.destroyed >= g.Cfg.NumSessions && rt.Done != nil {
			rt.Done()
		}
	}, nil)
	return nil
}

const pageScrapeKey = "workload.wsesspage.scrape"

type pageScrape struct {
	buf []byte
}

func (g *Wsesspage) startSession() {
	first := Burst{Requests: []Request{{Method: "GET", URI: g.Cfg.URIPrefix}}}
	g.sr.start([]Burst{first}, func(st *sessionState) {})
}

// Start registers the page-scrape handler (issuing the embedded-object
// burst once the first page's body has been captured, since the number
// of remaining bursts is only known after the scrape) and begins ticking
// new sessions at the configured rate.
func (g *Wsesspage) Start() {
	g.rt.Bus.Register(event.CallRecvStop, func(_ event.Kind, subject any, _, _ any) {
		call := subject.(*conn.Call)
		st := callSession(call)
		if st == nil || st.burstIdx != 0 {
			return
		}
		page, _ := st.sess.Extra(pageScrapeKey, func() any { return &pageScrape{} }).(*pageScrape)
		uris := scrapeEmbeddedURIs(page.buf, g.Cfg.NumReqs)
		if len(uris) == 0 {
			return
		}
		reqs := make([]Request, len(uris))
		for i, u := range uris {
			reqs[i] = Request{Method: "GET", URI: u}
		}
		st.appendBurst(Burst{Requests: reqs, ThinkTime: g.Cfg.ThinkTime})
	}, nil)

	g.rate = g.rt.NewRate(func() bool {
		if g.generated >= g.Cfg.NumSessions {
			return true
		}
		g.generated++
		g.startSession()
		return g.generated >= g.Cfg.NumSessions
	})
	g.rate.Start(event.SessDestroyed)
}

func (g *Wsesspage) Stop() {
	if g.rate != nil {
		g.rate.Stop()
	}
}

// scrapeEmbeddedURIs finds up to max URIs following src=/href=/data= attributes
// (single or double quoted) in an HTML body, grounded on wsesspage.c's
// P_SRC/P_DATA/P_LQUOTE/P_QUOTED_URI scan without reproducing its full
// tag/comment-aware state machine.
func scrapeEmbeddedURIs(body []byte, max int) []string {
	var uris []string
	for _, attr := range [][]byte{[]byte("src="), []byte("href="), []byte("data=")} {
		pos := 0
		for len(uris) < max {
			idx := bytes.Index(body[pos:], attr)
			if idx < 0 {
				break
			}
			start := pos + idx + len(attr)
			pos = start
			if start >= len(body) {
				break
			}
			quote := body[start]
			if quote != '"' && quote != '\'' {
				continue
			}
			start++
			end := bytes.IndexByte(body[start:], quote)
			if end < 0 {
				break
			}
			uris = append(uris, string(body[start:start+end]))
			pos = start + end
		}
	}
	if len(uris) > max {
		uris = uris[:max]
	}
	return uris
}
