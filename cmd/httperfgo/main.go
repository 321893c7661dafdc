// Command httperfgo drives the engine assembled from internal/clock,
// internal/event, internal/reactor, internal/netpool, internal/conn,
// internal/workload, internal/rate, internal/plugin, and internal/stats
// against the CLI surface internal/config parses (spec.md §6). Grounded
// on app/app.go's App.Run/awaitSignal shape: a single place that builds
// every collaborator, runs until the workload signals completion or a
// signal arrives, and reports a final exit status.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/config"
	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
	"github.com/searchktools/httperfgo/internal/netpool"
	"github.com/searchktools/httperfgo/internal/plugin"
	"github.com/searchktools/httperfgo/internal/rate"
	"github.com/searchktools/httperfgo/internal/reactor"
	"github.com/searchktools/httperfgo/internal/stats"
	"github.com/searchktools/httperfgo/internal/syscalltime"
	"github.com/searchktools/httperfgo/internal/workload"
)

// version is the fixed string sent in every request's User-Agent header
// (spec.md §4.6: "includes the tool's version").
const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if cfg.SSL {
		// The TLS library binding is an explicit external collaborator
		// (spec.md §1 Out of scope), never implemented by this core.
		fmt.Fprintln(os.Stderr, "httperfgo: --ssl requires a TLS library binding this build does not wire; aborting")
		return 1
	}

	log := logrus.New()
	switch {
	case cfg.Verbose >= 2:
		log.SetLevel(logrus.DebugLevel)
	case cfg.Verbose == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}

	clk := clock.New()
	bus := event.New()

	poller, err := reactor.NewPoller()
	if err != nil {
		fmt.Fprintf(os.Stderr, "httperfgo: poller init: %v\n", err)
		return 1
	}
	rx := reactor.New(poller, clk, log)
	defer rx.Close()

	hosts := netpool.NewHostCache()
	addrs := netpool.NewAddressPool()
	if cfg.Sources != "" {
		if err := addrs.AddAddresses(cfg.Sources); err != nil {
			fmt.Fprintf(os.Stderr, "httperfgo: --source: %v\n", err)
			return 1
		}
	}

	opts := conn.Options{
		Timeout:            cfg.Timeout,
		ThinkTimeout:       cfg.ThinkTimeout,
		SendBuffer:         cfg.SendBuffer,
		RecvBuffer:         cfg.RecvBuffer,
		CloseWithReset:     cfg.CloseWithReset,
		Hog:                cfg.Hog,
		HTTPMajor:          cfg.HTTPMajor,
		HTTPMinor:          cfg.HTTPMinor,
		KeepAlive:          keepAliveWanted(cfg),
		SuppressHostHeader: cfg.NoHostHdr,
		UserAgentVersion:   version,
	}

	engine := conn.NewEngine(clk, bus, rx, hosts, addrs, opts, log, nil)
	if cfg.Verbose >= 2 {
		rec := syscalltime.New(clk)
		rec.Enable(cfg.Verbose)
		engine.Syscalls = rec
		rx.Syscalls = rec
	}

	gens, err := buildGenerators(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	done := make(chan struct{})
	var doneOnce bool
	rt := &workload.Runtime{
		Engine:         engine,
		Bus:            bus,
		RateInfo:       cfg.Rate,
		ClientID:       cfg.ClientID,
		RetryOnFailure: cfg.RetryOnFailure,
		SessionCookies: cfg.SessionCookies,
		FailureStatus:  cfg.FailureStatus,
		NewRate: func(tick rate.TickFunc) *rate.Generator {
			return rate.New(clk, bus, cfg.Rate, cfg.ClientID, tick)
		},
		Done: func() {
			if !doneOnce {
				doneOnce = true
				close(done)
			}
		},
	}

	if err := gens.Init(rt); err != nil {
		fmt.Fprintf(os.Stderr, "httperfgo: %v\n", err)
		return 1
	}

	basic := stats.NewBasic(clk)
	collectors := (&plugin.CollectorChain{}).Use(basic)
	if cfg.PrintReply.Enabled || cfg.PrintRequest.Enabled {
		collectors.Use(&stats.PrintReply{
			W:             os.Stderr,
			RequestHeader: cfg.PrintRequest.Header,
			RequestBody:   cfg.PrintRequest.Body,
			ReplyHeader:   cfg.PrintReply.Header,
			ReplyBody:     cfg.PrintReply.Body,
		})
	}
	var promCollector *stats.Prometheus
	if cfg.MetricsAddr != "" {
		promCollector = &stats.Prometheus{Addr: cfg.MetricsAddr}
		collectors.Use(promCollector)
	}
	if err := collectors.Init(bus); err != nil {
		fmt.Fprintf(os.Stderr, "httperfgo: %v\n", err)
		return 1
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	stop := make(chan struct{})
	reactorErr := make(chan error, 1)

	start := clk.Now()
	gens.Start()
	collectors.Start()

	go func() { reactorErr <- rx.Run(stop) }()

	select {
	case <-done:
	case <-sigc:
		log.Warn("interrupted, winding down")
	case err := <-reactorErr:
		if err != nil {
			log.WithError(err).Error("reactor stopped unexpectedly")
		}
	}
	close(stop)

	collectors.Stop()
	gens.Stop()

	window := stats.Window{Start: start, Stop: clk.Now()}
	basic.Dump(os.Stdout, window, cfg.Verbose, stats.GetProcessTimes())
	if cfg.Verbose >= 2 {
		engine.Syscalls.Dump(os.Stdout)
	}

	if promCollector != nil {
		// Give a scraper a moment to take a final reading before exit;
		// harmless no-op when MetricsAddr was never actually served.
		time.Sleep(50 * time.Millisecond)
	}

	return 0
}

// keepAliveWanted decides whether calls on the same connection should be
// pipelined/kept alive: any workload that issues more than one call per
// connection needs it, mirroring httperf's own default of always
// persisting connections used for more than a single call (spec.md §4.6).
func keepAliveWanted(cfg *config.Config) bool {
	return cfg.NumCalls > 1 || cfg.BurstLength > 1 ||
		cfg.Wsess != nil || cfg.Wsesspage != nil || cfg.Wsesslog != nil
}

// buildGenerators composes the workload.Generator chain selected by the
// configured workload flags. Exactly one of --wsess/--wsesspage/
// --wsesslog drives session-shaped traffic; absent those, the default is
// the original's conn_rate+call_seq pair, layered with whichever
// single-call URI generator (--wlog/--wset, else the fixed --uri) and
// the shared --add-header stamp.
func buildGenerators(cfg *config.Config) (*plugin.GeneratorChain, error) {
	chain := &plugin.GeneratorChain{}

	hostHeader := cfg.ServerName
	if hostHeader == "" {
		hostHeader = cfg.Server
	}

	if len(cfg.AddHeaders) > 0 {
		chain.Use(&workload.ExtraHeaders{Lines: cfg.AddHeaders})
	}

	switch {
	case cfg.Wsess != nil:
		chain.Use(&workload.Wsess{Cfg: workload.WsessConfig{
			NumSessions: cfg.Wsess.NumSessions,
			NumCalls:    cfg.Wsess.NumCalls,
			ThinkTime:   cfg.Wsess.ThinkTime,
			BurstLen:    cfg.BurstLength,
			Host:        cfg.Server,
			HostHeader:  hostHeader,
			Port:        cfg.Port,
		}})
		chain.Use(uriGenerator(cfg))
	case cfg.Wsesspage != nil:
		chain.Use(&workload.Wsesspage{Cfg: workload.WsesspageConfig{
			NumSessions: cfg.Wsesspage.NumSessions,
			NumReqs:     cfg.Wsesspage.NumReqs,
			ThinkTime:   cfg.Wsesspage.ThinkTime,
			URIPrefix:   cfg.URI,
			Host:        cfg.Server,
			HostHeader:  hostHeader,
			Port:        cfg.Port,
		}})
	case cfg.Wsesslog != nil:
		chain.Use(&workload.Wsesslog{Cfg: workload.WsesslogConfig{
			NumSessions: cfg.Wsesslog.NumSessions,
			ThinkTime:   cfg.Wsesslog.ThinkTime,
			File:        cfg.Wsesslog.File,
			Host:        cfg.Server,
			HostHeader:  hostHeader,
			Port:        cfg.Port,
		}})
	default:
		chain.Use(uriGenerator(cfg))
		chain.Use(&workload.CallSeq{
			NumCalls:   cfg.NumCalls,
			BurstLen:   cfg.BurstLength,
			Method:     cfg.Method,
			HostHeader: hostHeader,
		})
		chain.Use(&workload.ConnRate{
			NumConns:   cfg.NumConns,
			Host:       cfg.Server,
			Port:       cfg.Port,
			HostHeader: hostHeader,
		})
	}

	return chain, nil
}

func uriGenerator(cfg *config.Config) workload.Generator {
	switch {
	case cfg.Wlog != nil:
		return &workload.URIWlog{File: cfg.Wlog.File, Loop: cfg.Wlog.Loop}
	case cfg.Wset != nil:
		return &workload.URIWset{
			URIPrefix:      cfg.URI,
			NumFiles:       cfg.Wset.NumFiles,
			TargetMissRate: cfg.Wset.TargetMissRate,
			NumClients:     cfg.ClientN,
			ClientID:       cfg.ClientID,
		}
	default:
		return &workload.URIFixed{URI: cfg.URI}
	}
}
