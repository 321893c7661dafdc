// Package stats implements the run-level statistics collectors from
// spec.md §8, grounded on httperf's stat/basic.c and stat/print_reply.c:
// Collector subscribes to the same connection/call lifecycle events the
// workload generators do, accumulates running sums, and renders the final
// report on demand rather than on a timer.
package stats

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/conn"
	"github.com/searchktools/httperfgo/internal/event"
)

// maxLifetimeSeconds and binWidthSeconds bound the connection-lifetime
// histogram the same way
// basic.c's MAX_LIFETIME/BIN_WIDTH do: a 1ms-wide bin out to 100 seconds of
// connection lifetime, a range generous enough for any sane --timeout.
const (
	maxLifetimeSeconds = 100.0
	binWidthSeconds    = 1e-3
	numBins            = int(maxLifetimeSeconds / binWidthSeconds)
)

// Basic accumulates the headline counters from spec.md §8: request/reply
// counts and rates, connection lifetime and connect-time statistics, byte
// totals by section (header/content/footer), and a per-FailureKind error
// tally. The zero value is not ready to use; call NewBasic.
type Basic struct {
	clk *clock.Clock

	numConnsIssued uint32
	numReplies     [6]uint32 // index by status/100, [0] unused
	failures       map[string]uint32
	maxConns       uint32
	activeConns    uint32

	numLifetimes    uint32
	lifetimeSum     time.Duration
	lifetimeSumSq   float64 // seconds^2, accumulated in float64 like STDDEV's original double math
	lifetimeMin     time.Duration
	lifetimeMax     time.Duration
	lifetimeHist    [numBins]uint32

	numConnects   uint32
	connectSum    time.Duration

	numResponses   uint32
	responseSum    time.Duration
	transferSum    time.Duration

	numSent     uint32
	reqBytesSent uint64

	numReceived        uint32
	hdrBytesReceived    uint64
	replyBytesReceived  uint64
	footerBytesReceived uint64

	numSamples    uint32
	sampleRateSum float64
	sampleRateSum2 float64
	sampleRateMin  float64
	sampleRateMax  float64
}

type connTiming struct {
	connectStart    time.Time
	callsCompleted  int
}

type callTiming struct {
	sendStart time.Time
	recvStart time.Time
}

const (
	connTimingKey = "stats.basic.conn"
	callTimingKey = "stats.basic.call"
)

// NewBasic returns a Basic ready to Attach to a bus. clk is the same Clock
// the owning Engine uses; Basic keeps it, but the durations it records are
// measured with time.Now/time.Since at each event, not from the clock's
// cached per-iteration "now".
func NewBasic(clk *clock.Clock) *Basic {
	b := &Basic{clk: clk, failures: make(map[string]uint32, 8)}
	b.lifetimeMin = time.Duration(math.MaxInt64)
	b.sampleRateMin = math.MaxFloat64
	return b
}

// Name identifies this collector for plugin.CollectorChain/--verbose
// startup logging.
func (b *Basic) Name() string { return "basic statistics" }

// Init satisfies plugin.Collector by registering Basic's handlers; it
// never fails (spec.md §4.9's Stat_Collector init/start/stop contract),
// unlike a generator's Init which can reject bad configuration.
func (b *Basic) Init(bus *event.Bus) error {
	b.Attach(bus)
	return nil
}

// Start and Stop are no-ops: Basic only ever reacts to bus events: there
// is nothing to start ticking and nothing to tear down before Dump reads
// the accumulated counters.
func (b *Basic) Start() {}
func (b *Basic) Stop()  {}

// Attach registers every handler Basic needs, mirroring basic.c's init():
// one registration per event kind it watches, each a closure over b rather
// than C's single static struct.
func (b *Basic) Attach(bus *event.Bus) {
	bus.Register(event.PerfSample, func(_ event.Kind, _ any, _, arg any) {
		b.onPerfSample(arg.(float64))
	}, nil)
	bus.Register(event.ConnFailed, func(_ event.Kind, _ any, _, arg any) {
		b.failures[arg.(conn.FailureKind).StatsBucket()]++
	}, nil)
	bus.Register(event.ConnNew, func(_ event.Kind, subject any, _, _ any) {
		b.numConnsIssued++ // conn_new precedes connect() attempt; matches conn_connecting below for the "issued" counter's original meaning
		b.activeConns++
		if b.activeConns > b.maxConns {
			b.maxConns = b.activeConns
		}
	}, nil)
	bus.Register(event.ConnConnecting, func(_ event.Kind, subject any, _, _ any) {
		c := subject.(*conn.Connection)
		ct := c.Extra(connTimingKey, func() any { return &connTiming{} }).(*connTiming)
		ct.connectStart = time.Now()
	}, nil)
	bus.Register(event.ConnConnected, func(_ event.Kind, subject any, _, _ any) {
		c := subject.(*conn.Connection)
		ct := c.Extra(connTimingKey, func() any { return &connTiming{} }).(*connTiming)
		b.connectSum += time.Since(ct.connectStart)
		b.numConnects++
	}, nil)
	bus.Register(event.ConnDestroyed, func(_ event.Kind, subject any, _, _ any) {
		c := subject.(*conn.Connection)
		ct := c.Extra(connTimingKey, func() any { return &connTiming{} }).(*connTiming)
		if ct.callsCompleted > 0 {
			lifetime := time.Since(ct.connectStart)
			b.lifetimeSum += lifetime
			secs := lifetime.Seconds()
			b.lifetimeSumSq += secs * secs
			if lifetime < b.lifetimeMin {
				b.lifetimeMin = lifetime
			}
			if lifetime > b.lifetimeMax {
				b.lifetimeMax = lifetime
			}
			b.numLifetimes++

			bin := int(secs / binWidthSeconds)
			if bin >= numBins {
				bin = numBins - 1
			}
			b.lifetimeHist[bin]++
		}
		if b.activeConns > 0 {
			b.activeConns--
		}
	}, nil)
	bus.Register(event.CallSendStart, func(_ event.Kind, subject any, _, _ any) {
		c := subject.(*conn.Call)
		ct := c.Extra(callTimingKey, func() any { return &callTiming{} }).(*callTiming)
		ct.sendStart = time.Now()
	}, nil)
	bus.Register(event.CallSendStop, func(_ event.Kind, subject any, _, _ any) {
		call := subject.(*conn.Call)
		b.reqBytesSent += uint64(requestSize(call))
		b.numSent++
	}, nil)
	bus.Register(event.CallRecvStart, func(_ event.Kind, subject any, _, _ any) {
		c := subject.(*conn.Call)
		ct := c.Extra(callTimingKey, func() any { return &callTiming{} }).(*callTiming)
		now := time.Now()
		b.responseSum += now.Sub(ct.sendStart)
		ct.recvStart = now
		b.numResponses++
	}, nil)
	bus.Register(event.CallRecvStop, func(_ event.Kind, subject any, _, _ any) {
		call := subject.(*conn.Call)
		ct := call.Extra(callTimingKey, func() any { return &callTiming{} }).(*callTiming)
		b.transferSum += time.Since(ct.recvStart)

		b.hdrBytesReceived += call.Reply.HeaderBytes
		b.replyBytesReceived += call.Reply.ContentBytes
		b.footerBytesReceived += call.Reply.FooterBytes

		idx := call.Reply.Status / 100
		if idx >= 0 && idx < len(b.numReplies) {
			b.numReplies[idx]++
		}
		b.numReceived++

		if call.Connection != nil {
			conn := call.Connection
			connCt := conn.Extra(connTimingKey, func() any { return &connTiming{} }).(*connTiming)
			connCt.callsCompleted++
		}
	}, nil)
}

// requestSize renders the same wire length CallSendStop's caller already
// wrote, summed from Iovec rather than re-measured — Call doesn't expose a
// cached total, so this recomputes it the same way the send path built it.
func requestSize(call *conn.Call) int {
	total := 0
	for _, frag := range call.Iovec() {
		total += len(frag)
	}
	return total
}

func (b *Basic) onPerfSample(rate float64) {
	b.sampleRateSum += rate
	b.sampleRateSum2 += rate * rate
	if rate < b.sampleRateMin {
		b.sampleRateMin = rate
	}
	if rate > b.sampleRateMax {
		b.sampleRateMax = rate
	}
	b.numSamples++
}

func stddev(sum, sumSq float64, n uint32) float64 {
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Window bounds the measured run, used to compute rates over the test's
// actual wall-clock duration (httperf.c's test_time_start/test_time_stop).
type Window struct {
	Start, Stop time.Time
}

func (w Window) duration() float64 {
	d := w.Stop.Sub(w.Start).Seconds()
	if d <= 0 {
		return 1 // avoid a divide-by-zero report on a sub-millisecond run
	}
	return d
}

// Dump renders the report in the same section order and units as basic.c's
// dump(): totals, connection rate/time/length, request rate/size, reply
// rate, reply time/size/status, CPU/net-I/O, and error counts.
func (b *Basic) Dump(w io.Writer, window Window, verbose int, cpu ProcessTimes) {
	delta := window.duration()

	totalReplies := 0
	for i := 1; i < len(b.numReplies); i++ {
		totalReplies += int(b.numReplies[i])
	}

	if verbose > 1 {
		fmt.Fprintf(w, "\nConnection lifetime histogram (time in ms):\n")
		prevZero := true
		for i := 0; i < numBins; i++ {
			if b.lifetimeHist[i] == 0 {
				prevZero = true
				continue
			}
			if !prevZero {
				// already printed a contiguous run; nothing to separate
			}
			t := (float64(i) + 0.5) * binWidthSeconds
			fmt.Fprintf(w, "%16.1f %d\n", 1e3*t, b.lifetimeHist[i])
			prevZero = false
		}
	}

	fmt.Fprintf(w, "\nTotal: connections %d requests %d replies %d test-duration %.3f s\n\n",
		b.numConnsIssued, b.numSent, totalReplies, delta)

	connPeriod := 0.0
	if b.numConnsIssued > 0 {
		connPeriod = delta / float64(b.numConnsIssued)
	}
	fmt.Fprintf(w, "Connection rate: %.1f conn/s (%.1f ms/conn, <=%d concurrent connections)\n",
		float64(b.numConnsIssued)/delta, 1e3*connPeriod, b.maxConns)

	var lifetimeAvg, lifetimeStddev, lifetimeMedian float64
	if b.numLifetimes > 0 {
		lifetimeAvg = b.lifetimeSum.Seconds() / float64(b.numLifetimes)
		lifetimeStddev = stddev(b.lifetimeSum.Seconds(), b.lifetimeSumSq, b.numLifetimes)
		n := uint32(0)
		for i := 0; i < numBins; i++ {
			n += b.lifetimeHist[i]
			if float64(n) >= 0.5*float64(b.numLifetimes) {
				lifetimeMedian = (float64(i) + 0.5) * binWidthSeconds
				break
			}
		}
	}
	lifetimeMinMs := 0.0
	if b.numLifetimes > 0 {
		lifetimeMinMs = 1e3 * b.lifetimeMin.Seconds()
	}
	fmt.Fprintf(w, "Connection time [ms]: min %.1f avg %.1f max %.1f median %.1f stddev %.1f\n",
		lifetimeMinMs, 1e3*lifetimeAvg, 1e3*b.lifetimeMax.Seconds(), 1e3*lifetimeMedian, 1e3*lifetimeStddev)

	connectTime := 0.0
	if b.numConnects > 0 {
		connectTime = b.connectSum.Seconds() / float64(b.numConnects)
	}
	fmt.Fprintf(w, "Connection time [ms]: connect %.1f\n", 1e3*connectTime)

	connLength := 0.0
	if b.numLifetimes > 0 {
		connLength = float64(totalReplies) / float64(b.numLifetimes)
	}
	fmt.Fprintf(w, "Connection length [replies/conn]: %.3f\n\n", connLength)

	callPeriod := 0.0
	if b.numSent > 0 {
		callPeriod = delta / float64(b.numSent)
	}
	fmt.Fprintf(w, "Request rate: %.1f req/s (%.1f ms/req)\n", float64(b.numSent)/delta, 1e3*callPeriod)

	callSize := 0.0
	if b.numSent > 0 {
		callSize = float64(b.reqBytesSent) / float64(b.numSent)
	}
	fmt.Fprintf(w, "Request size [B]: %.1f\n\n", callSize)

	var rateAvg, rateStddev float64
	if b.numSamples > 0 {
		rateAvg = b.sampleRateSum / float64(b.numSamples)
		rateStddev = stddev(b.sampleRateSum, b.sampleRateSum2, b.numSamples)
	}
	rateMin := 0.0
	if b.numSamples > 0 {
		rateMin = b.sampleRateMin
	}
	fmt.Fprintf(w, "Reply rate [replies/s]: min %.1f avg %.1f max %.1f stddev %.1f (%d samples)\n",
		rateMin, rateAvg, b.sampleRateMax, rateStddev, b.numSamples)

	respTime, xferTime := 0.0, 0.0
	if b.numResponses > 0 {
		respTime = b.responseSum.Seconds() / float64(b.numResponses)
	}
	if totalReplies > 0 {
		xferTime = b.transferSum.Seconds() / float64(totalReplies)
	}
	fmt.Fprintf(w, "Reply time [ms]: response %.1f transfer %.1f\n", 1e3*respTime, 1e3*xferTime)

	var hdrSize, replySize, footerSize float64
	if totalReplies > 0 {
		hdrSize = float64(b.hdrBytesReceived) / float64(totalReplies)
		replySize = float64(b.replyBytesReceived) / float64(totalReplies)
		footerSize = float64(b.footerBytesReceived) / float64(totalReplies)
	}
	fmt.Fprintf(w, "Reply size [B]: header %.1f content %.1f footer %.1f (total %.1f)\n",
		hdrSize, replySize, footerSize, hdrSize+replySize+footerSize)

	fmt.Fprintf(w, "Reply status: 1xx=%d 2xx=%d 3xx=%d 4xx=%d 5xx=%d\n\n",
		b.numReplies[1], b.numReplies[2], b.numReplies[3], b.numReplies[4], b.numReplies[5])

	fmt.Fprintf(w, "CPU time [s]: user %.2f system %.2f (user %.1f%% system %.1f%% total %.1f%%)\n",
		cpu.User.Seconds(), cpu.Sys.Seconds(),
		100*cpu.User.Seconds()/delta, 100*cpu.Sys.Seconds()/delta,
		100*(cpu.User.Seconds()+cpu.Sys.Seconds())/delta)

	totalSize := b.reqBytesSent + b.hdrBytesReceived + b.replyBytesReceived
	fmt.Fprintf(w, "Net I/O: %.1f KB/s (%.1f*10^6 bps)\n\n", float64(totalSize)/delta/1024.0, 8e-6*float64(totalSize)/delta)

	// basic.c prints "client-timo" and "socket-timo" as separate columns
	// (client-side think/reply timeouts vs. a connect() ETIMEDOUT); this
	// port's FailureKind.StatsBucket collapses all three timeout kinds
	// (connect, think, reply) into one "client-timeout" bucket (§7), so
	// there is no separate socket-timo count left to print.
	var total uint32
	for _, n := range b.failures {
		total += n
	}
	fmt.Fprintf(w, "Errors: total %d client-timo %d connrefused %d connreset %d\n",
		total, b.failures["client-timeout"],
		b.failures[conn.FailureRefused.String()], b.failures[conn.FailureReset.String()])
	fmt.Fprintf(w, "Errors: fd-unavail %d addrunavail %d ftab-full %d other %d\n",
		b.failures[conn.FailureFDUnavailable.String()], b.failures[conn.FailureAddressUnavailable.String()],
		b.failures[conn.FailureFtabFull.String()], b.failures[conn.FailureOtherConnect.String()])
}
