package stats

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
)

// Prometheus is an ambient-stack addition (SPEC_FULL.md §4 EXPANSION, not
// present in the original): it exposes the same counters stats.Basic
// accumulates through github.com/prometheus/client_golang collectors, so
// a run can be scraped the same way the teacher's services expose
// metrics, instead of only being readable from the end-of-run text dump.
// Response-time percentile tables remain out of scope (spec.md §1
// Non-goals); only coarse counters and a bucketed latency histogram are
// exported.
type Prometheus struct {
	Addr string // e.g. ":9100"; empty disables the HTTP listener but still registers collectors

	reqTotal     prometheus.Counter
	replyTotal   *prometheus.CounterVec
	connTotal    prometheus.Counter
	connFailures *prometheus.CounterVec
	latency      prometheus.Histogram

	registry *prometheus.Registry
	srv      *http.Server
}

func (p *Prometheus) Name() string { return "prometheus exporter" }

// Init registers collectors on a private Registry (not the global
// DefaultRegisterer) so running more than one Prometheus collector in a
// process, or re-running tests, never collides with global registration
// state — mirroring the bus's own per-run-instance handler tables rather
// than a package-level global.
func (p *Prometheus) Init(bus *event.Bus) error {
	p.registry = prometheus.NewRegistry()

	p.reqTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "httperfgo_requests_total",
		Help: "Total HTTP requests sent.",
	})
	p.replyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "httperfgo_replies_total",
		Help: "Total HTTP replies received, by status class.",
	}, []string{"class"})
	p.connTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "httperfgo_connections_total",
		Help: "Total connections opened.",
	})
	p.connFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "httperfgo_connection_failures_total",
		Help: "Connection failures, by kind.",
	}, []string{"kind"})
	p.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "httperfgo_reply_latency_seconds",
		Help:    "Time from request send-start to reply completion.",
		Buckets: prometheus.DefBuckets,
	})

	p.registry.MustRegister(p.reqTotal, p.replyTotal, p.connTotal, p.connFailures, p.latency)

	bus.Register(event.CallSendStop, func(event.Kind, any, any, any) {
		p.reqTotal.Inc()
	}, nil)
	bus.Register(event.ConnNew, func(event.Kind, any, any, any) {
		p.connTotal.Inc()
	}, nil)
	bus.Register(event.ConnFailed, func(_ event.Kind, _ any, _ any, arg any) {
		p.connFailures.WithLabelValues(arg.(conn.FailureKind).StatsBucket()).Inc()
	}, nil)

	const sendStartKey = "stats.prometheus.sendStart"
	bus.Register(event.CallSendStart, func(_ event.Kind, subject any, _, _ any) {
		sendStart := subject.(*conn.Call).Extra(sendStartKey, func() any { return new(time.Time) }).(*time.Time)
		*sendStart = time.Now()
	}, nil)
	bus.Register(event.CallRecvStop, func(_ event.Kind, subject any, _, _ any) {
		call := subject.(*conn.Call)
		sendStart := call.Extra(sendStartKey, func() any { return new(time.Time) }).(*time.Time)
		if !sendStart.IsZero() {
			p.latency.Observe(time.Since(*sendStart).Seconds())
		}
		class := call.Reply.Status / 100
		p.replyTotal.WithLabelValues(statusClassLabel(class)).Inc()
	}, nil)

	return nil
}

func statusClassLabel(class int) string {
	switch {
	case class >= 1 && class <= 5:
		return string(rune('0'+class)) + "xx"
	default:
		return "other"
	}
}

// Start launches the /metrics HTTP listener if Addr is non-empty.
// Grounded on promhttp.Handler's standard wiring; this is the one place
// in the binary that opens a server-side socket, separate from the
// client connections the reactor drives.
func (p *Prometheus) Start() {
	if p.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	p.srv = &http.Server{Addr: p.Addr, Handler: mux}
	go p.srv.ListenAndServe()
}

func (p *Prometheus) Stop() {
	if p.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.srv.Shutdown(ctx)
}
