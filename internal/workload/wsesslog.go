package workload

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/rate"
)

// WsesslogConfig mirrors param.wsesslog: --wsesslog=N,T,file parses as
// (num_sessions, default think_time, recipe file).
type WsesslogConfig struct {
	NumSessions int
	ThinkTime   time.Duration
	File        string

	Host, HostHeader string
	Port             int
}

// Wsesslog replays session recipes parsed from a --wsesslog file
// (spec.md §6) at the configured rate, cycling through the parsed
// templates round-robin the way gen/wsesslog.c's session_templates array
// does (so cooperating --client=ID/N instances can start at different
// offsets into the same recipe file — simplified here to always start at
// offset 0, since this port runs one client process per invocation and
// has no sibling instances to stagger against).
type Wsesslog struct {
	Cfg WsesslogConfig

	sr        *sessionRuntime
	rate      *rate.Generator
	templates [][]Burst
	next      int
	generated int
	destroyed int
	rt        *Runtime
}

func (g *Wsesslog) Name() string { return "creates sessions from a configuration file" }

func (g *Wsesslog) Init(rt *Runtime) error {
	g.rt = rt
	g.sr = newSessionRuntime(rt, g.Cfg.Host, g.Cfg.Port, g.Cfg.HostHeader)
	registerSessionHandlers(rt.Bus)

	templates, err := parseWsesslog(g.Cfg.File, g.Cfg.ThinkTime)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return fmt.Errorf("workload: wsesslog: %s defines no sessions", g.Cfg.File)
	}
	g.templates = templates

	rt.Bus.Register(event.SessDestroyed, func(event.Kind, any, any, any) {
		g.destroyed++
		if g.destroyed >= g.Cfg.NumSessions && rt.Done != nil {
			rt.Done()
		}
	}, nil)
	return nil
}

func (g *Wsesslog) Start() {
	g.rate = g.rt.NewRate(func() bool {
		if g.generated >= g.Cfg.NumSessions {
			return true
		}
		g.generated++
		bursts := g.templates[g.next]
		g.next = (g.next + 1) % len(g.templates)
		g.sr.start(bursts, nil)
		return g.generated >= g.Cfg.NumSessions
	})
	g.rate.Start(event.SessDestroyed)
}

func (g *Wsesslog) Stop() {
	if g.rate != nil {
		g.rate.Stop()
	}
}

// trailingUnescapedBackslash reports whether raw ends in an odd run of
// backslashes -- a contents= value broken across lines with a trailing
// "\", the way gen/wsesslog.c's fgets-based continuation works. A line
// ending in "\\" (an escaped backslash) does not count.
func trailingUnescapedBackslash(raw string) bool {
	n := 0
	for i := len(raw) - 1; i >= 0 && raw[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// parseWsesslog reads the session-log file format from spec.md §6: blank
// lines separate sessions, a non-indented line opens a new burst with
// its URI as the first token, an indented (whitespace-first) line adds
// another URI to the current burst, and any line may carry
// whitespace-separated key=value options (method=, think=, contents=).
// A line ending in a lone backslash continues onto the next physical
// line before any of that is parsed, joined with a \n escape so the
// continued contents= value keeps reading as one token.
// Grounded on gen/wsesslog.c's parse_config, simplified to a single-pass
// line scanner instead of the original's hand-rolled character-at-a-time
// quote/escape state machine.
func parseWsesslog(path string, defaultThink time.Duration) ([][]Burst, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("workload: wsesslog: open %s: %w", path, err)
	}
	defer f.Close()

	var sessions [][]Burst
	var bursts []Burst

	flush := func() {
		if len(bursts) > 0 {
			sessions = append(sessions, bursts)
			bursts = nil
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		raw := scanner.Text()
		if strings.HasPrefix(raw, "#") {
			continue
		}
		for trailingUnescapedBackslash(raw) {
			if !scanner.Scan() {
				return nil, fmt.Errorf("workload: wsesslog: %s: contents= continuation at end of file", path)
			}
			raw = raw[:len(raw)-1] + "\\n" + scanner.Text()
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			flush()
			continue
		}
		indented := len(raw) > 0 && (raw[0] == ' ' || raw[0] == '\t')

		req, think, err := parseWsesslogLine(trimmed)
		if err != nil {
			return nil, fmt.Errorf("workload: wsesslog: %s: %w", path, err)
		}

		if indented && len(bursts) > 0 {
			b := &bursts[len(bursts)-1]
			b.Requests = append(b.Requests, req)
			if think > 0 {
				b.ThinkTime = think
			}
			continue
		}

		thinkTime := defaultThink
		if think > 0 {
			thinkTime = think
		}
		bursts = append(bursts, Burst{Requests: []Request{req}, ThinkTime: thinkTime})
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("workload: wsesslog: read %s: %w", path, err)
	}
	return sessions, nil
}

// parseWsesslogLine splits one trimmed recipe line into its URI (first
// token) and key=value options. think is 0 if the line did not override
// the session default.
func parseWsesslogLine(line string) (req Request, think time.Duration, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return req, 0, fmt.Errorf("empty recipe line")
	}
	req.URI = fields[0]
	req.Method = "GET"

	for _, f := range fields[1:] {
		key, val, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch key {
		case "method":
			req.Method = val
		case "think":
			secs, perr := strconv.ParseFloat(val, 64)
			if perr != nil {
				return req, 0, fmt.Errorf("bad think= value %q: %w", val, perr)
			}
			think = time.Duration(secs * float64(time.Second))
		case "contents":
			body := unescapeWsesslogContents(val)
			req.Body = []byte(body)
			req.ExtraHeaders = append(req.ExtraHeaders,
				fmt.Sprintf("Content-Length: %d", len(body)))
		}
	}
	return req, think, nil
}

// unescapeWsesslogContents expands the backslash escapes spec.md §6
// documents for contents=STRING: \\, \n, \r, \t, and a leading/trailing
// matching quote pair is stripped if present.
func unescapeWsesslogContents(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
