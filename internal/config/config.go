// Package config parses the CLI flag surface from spec.md §6 into an
// immutable Config, passed explicitly into cmd/httperfgo's wiring of
// internal/conn.Engine, internal/workload generators, and internal/stats
// collectors — Design Notes §9's "encapsulate as a single value passed
// explicitly" rule applied to configuration the same way internal/conn.Engine
// applies it to the reactor-thread state.
//
// Grounded on nabbar-golib/cobra's pattern of one flag-owning unit per
// concern contributing to a shared root command (SPEC_FULL.md §6
// EXPANSION); flags.go registers one *pflag.FlagSet per flag group named
// in spec.md §6 (target/protocol/transport/workload/timing/behavior/
// output/identity) instead of one flat flag list.
package config

import (
	"fmt"
	"time"

	"github.com/searchktools/httperfgo/internal/rate"
)

// Config is the fully parsed, validated command line. Zero value is not
// meaningful; obtain one via Parse.
type Config struct {
	// Target
	Server     string
	Port       int
	URI        string
	ServerName string // Host header override ("" means use Server)

	// Protocol
	HTTPMajor, HTTPMinor int
	Method               string
	AddHeaders           []string // raw "Key: Value" lines, validated at parse time
	NoHostHdr            bool

	// Transport
	Hog            bool
	CloseWithReset bool
	SendBuffer     int
	RecvBuffer     int
	SSL            bool
	SSLCiphers     string
	SSLNoReuse     bool
	Sources        string // --source=<spec>, fed to netpool.AddressPool.AddAddresses

	// Workload (exactly one of the fields below selects the active
	// generator combination; NumConns/NumCalls alone with no session
	// flag means the conn_rate+call_seq pair — NumCalls calls on each of
	// NumConns connections — with URIs from --wlog, --wset or --uri).
	NumConns    int
	NumCalls    int
	BurstLength int
	Rate        rate.Info

	Wsess     *WsessFlags
	Wsesspage *WsesspageFlags
	Wsesslog  *WsesslogFlags
	Wlog      *WlogFlags
	Wset      *WsetFlags

	// Timing
	Timeout      time.Duration
	ThinkTimeout time.Duration

	// Behavior
	RetryOnFailure bool
	FailureStatus  int
	SessionCookies bool

	// Output
	Verbose      int
	PrintReply   OutputSections
	PrintRequest OutputSections

	// Identity
	ClientID int
	ClientN  int

	// Ambient-stack addition (SPEC_FULL.md §4 EXPANSION): not in the
	// original CLI surface. Empty disables the exporter.
	MetricsAddr string
}

// OutputSections decodes --print-reply[=header|body] / --print-request
// [=header|body]: the bare flag (value "") means both sections, an
// explicit value selects just that one.
type OutputSections struct {
	Enabled bool
	Header  bool
	Body    bool
}

func parseSections(enabled bool, value string) (OutputSections, error) {
	if !enabled {
		return OutputSections{}, nil
	}
	switch value {
	case "", "all":
		return OutputSections{Enabled: true, Header: true, Body: true}, nil
	case "header":
		return OutputSections{Enabled: true, Header: true}, nil
	case "body":
		return OutputSections{Enabled: true, Body: true}, nil
	default:
		return OutputSections{}, fmt.Errorf("config: invalid section %q (want header, body, or empty for both)", value)
	}
}

// WsessFlags mirrors --wsess=N,N,T (workload.WsessConfig minus Host/Port,
// which Config fills in from Server/Port/ServerName once parsed).
type WsessFlags struct {
	NumSessions, NumCalls int
	ThinkTime             time.Duration
}

// WsesspageFlags mirrors --wsesspage=N,N,T.
type WsesspageFlags struct {
	NumSessions, NumReqs int
	ThinkTime            time.Duration
}

// WsesslogFlags mirrors --wsesslog=N,T,file.
type WsesslogFlags struct {
	NumSessions int
	ThinkTime   time.Duration
	File        string
}

// WlogFlags mirrors --wlog=y|n,file.
type WlogFlags struct {
	Loop bool
	File string
}

// WsetFlags mirrors --wset=N,P.
type WsetFlags struct {
	NumFiles       int
	TargetMissRate float64
}
